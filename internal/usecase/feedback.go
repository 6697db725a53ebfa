package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/ledger"
)

type CreateFeedbackInput struct {
	SessionKey          string `json:"sessionKey"`
	FromWallet          string `json:"feedbackFrom"`
	Rating              int    `json:"rating"`
	Notes               string `json:"notes"`
	TechnicalDxFeedback string `json:"technicalDxFeedback"`
}

// FeedbackFilter narrows ListFeedback. Wallet matches the recipient.
type FeedbackFilter struct {
	SessionKey string
	Wallet     string
}

type feedbackPayload struct {
	Rating              int    `json:"rating"`
	Notes               string `json:"notes,omitempty"`
	TechnicalDxFeedback string `json:"technicalDxFeedback,omitempty"`
}

// CreateFeedback records one participant's review of a completed session.
// A rating of 4 or more also adds a trust edge toward the other participant.
func (s *Service) CreateFeedback(ctx context.Context, in CreateFeedbackInput) (domain.Feedback, error) {
	from, ok := normalizeWallet(in.FromWallet)
	if !ok {
		return domain.Feedback{}, invalid("invalid_wallet")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return domain.Feedback{}, invalid("invalid_rating")
	}
	notes := strings.TrimSpace(in.Notes)
	dx := strings.TrimSpace(in.TechnicalDxFeedback)
	if len(notes) > maxNotesLength || len(dx) > maxNotesLength {
		return domain.Feedback{}, invalid("notes_too_long")
	}

	sess, err := s.GetSession(ctx, in.SessionKey)
	if err != nil {
		return domain.Feedback{}, err
	}
	if !sess.Participant(from) {
		return domain.Feedback{}, newError(ErrorForbidden, "not_a_participant", nil)
	}
	if sess.Status != domain.SessionCompleted {
		return domain.Feedback{}, newError(ErrorConflict, "session_not_completed", nil)
	}
	existing, err := s.query(ctx, typeFeedback, attr(attrSessionKey, sess.Key), attr(attrFeedbackFrom, from))
	if err != nil {
		return domain.Feedback{}, err
	}
	if len(existing) > 0 {
		return domain.Feedback{}, newError(ErrorConflict, "feedback_already_submitted", nil)
	}

	to := sess.Counterpart(from)
	attrs := []ledger.Attribute{
		attr(attrSessionKey, sess.Key),
		attr(attrMentorWallet, sess.MentorWallet),
		attr(attrLearnerWallet, sess.LearnerWallet),
		attr(attrFeedbackFrom, from),
		attr(attrFeedbackTo, to),
	}
	body := feedbackPayload{Rating: in.Rating, Notes: notes, TechnicalDxFeedback: dx}

	now := s.now().UTC()
	rcpt, err := s.createWithTxHash(ctx, typeFeedback, attrFeedbackKey, attrs, body, longLivedTTL)
	if err != nil {
		return domain.Feedback{}, err
	}

	if in.Rating >= positiveRating {
		_, err := s.CreateTrustEdge(ctx, CreateTrustEdgeInput{
			FromWallet: from,
			ToWallet:   to,
			Kind:       feedbackEdgeKind,
			Strength:   in.Rating * ratingEdgeFactor,
			Context:    fmt.Sprintf("session:%s", sess.Key),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "feedback trust edge write failed", "sessionKey", sess.Key, "err", err)
		}
	}

	return domain.Feedback{
		Key:                 rcpt.EntityKey,
		SessionKey:          sess.Key,
		MentorWallet:        sess.MentorWallet,
		LearnerWallet:       sess.LearnerWallet,
		FeedbackFrom:        from,
		FeedbackTo:          to,
		Rating:              in.Rating,
		Notes:               notes,
		TechnicalDxFeedback: dx,
		SpaceID:             s.spaceID,
		CreatedAt:           now,
		TxHash:              rcpt.TxHash,
	}, nil
}

// ListFeedback returns feedback for a session and/or received by a wallet,
// newest first.
func (s *Service) ListFeedback(ctx context.Context, f FeedbackFilter) ([]domain.Feedback, error) {
	var filters []ledger.Attribute
	if key := strings.ToLower(strings.TrimSpace(f.SessionKey)); key != "" {
		filters = append(filters, attr(attrSessionKey, key))
	}
	if strings.TrimSpace(f.Wallet) != "" {
		w, ok := normalizeWallet(f.Wallet)
		if !ok {
			return nil, invalid("invalid_wallet")
		}
		filters = append(filters, attr(attrFeedbackTo, w))
	}

	entities, hashes, err := s.queryWithTxHashes(ctx, typeFeedback, attrFeedbackKey, filters, nil)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Feedback, 0, len(entities))
	for _, e := range entities {
		p, ok := decodePayload(e)
		if !ok {
			s.skipMalformed(ctx, e)
			continue
		}
		out = append(out, domain.Feedback{
			Key:                 e.Key,
			SessionKey:          e.Attr(attrSessionKey),
			MentorWallet:        e.Attr(attrMentorWallet),
			LearnerWallet:       e.Attr(attrLearnerWallet),
			FeedbackFrom:        e.Attr(attrFeedbackFrom),
			FeedbackTo:          e.Attr(attrFeedbackTo),
			Rating:              p.number("rating"),
			Notes:               p.text("notes"),
			TechnicalDxFeedback: p.text("technicalDxFeedback"),
			SpaceID:             e.Attr(attrSpaceID),
			CreatedAt:           e.CreatedAt,
			TxHash:              hashes[e.Key],
		})
	}
	newestFirst(out, func(fb domain.Feedback) time.Time { return fb.CreatedAt }, func(fb domain.Feedback) string { return fb.Key })
	return out, nil
}
