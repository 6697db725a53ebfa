package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/ledger"
)

// RequestSessionInput describes a new session. RequesterWallet defaults to the
// learner when empty.
type RequestSessionInput struct {
	MentorWallet    string `json:"mentorWallet"`
	LearnerWallet   string `json:"learnerWallet"`
	RequesterWallet string `json:"requesterWallet"`
	Skill           string `json:"skill"`
	SessionDate     string `json:"sessionDate"`
	Duration        int    `json:"duration"`
	Notes           string `json:"notes"`
}

// SessionFilter narrows ListSessions. Wallet matches either participant.
type SessionFilter struct {
	Wallet string
	Status domain.SessionStatus
}

type sessionPayload struct {
	SessionDate     string `json:"sessionDate"`
	Duration        int    `json:"duration"`
	Notes           string `json:"notes,omitempty"`
	RequesterWallet string `json:"requesterWallet"`
	SkillLabel      string `json:"skillLabel"`
}

// sessionSides holds the confirmation and rejection entities of a set of
// sessions, keyed by session key.
type sessionSides struct {
	confirmations map[string]map[string]bool
	rejections    map[string]*domain.SessionRejection
}

// RequestSession schedules a session between a mentor and a learner. The
// requester's confirmation is written with it; the other party confirms later.
func (s *Service) RequestSession(ctx context.Context, in RequestSessionInput) (domain.Session, error) {
	mentor, ok := normalizeWallet(in.MentorWallet)
	if !ok {
		return domain.Session{}, invalid("invalid_mentor_wallet")
	}
	learner, ok := normalizeWallet(in.LearnerWallet)
	if !ok {
		return domain.Session{}, invalid("invalid_learner_wallet")
	}
	if mentor == learner {
		return domain.Session{}, invalid("same_mentor_and_learner")
	}
	requester := learner
	if strings.TrimSpace(in.RequesterWallet) != "" {
		requester, _ = normalizeWallet(in.RequesterWallet)
		if requester != mentor && requester != learner {
			return domain.Session{}, invalid("requester_not_participant")
		}
	}
	skill, label := normalizeSkill(in.Skill)
	if skill == "" {
		return domain.Session{}, invalid("empty_skill")
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(in.SessionDate))
	if err != nil {
		return domain.Session{}, invalid("invalid_session_date")
	}
	now := s.now().UTC()
	if !date.After(now) {
		return domain.Session{}, invalid("session_date_in_past")
	}
	duration := in.Duration
	if duration == 0 {
		duration = defaultDuration
	}
	if duration < minDuration || duration > maxDuration {
		return domain.Session{}, invalid("invalid_duration")
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return domain.Session{}, invalid("notes_too_long")
	}

	sess := domain.Session{
		MentorWallet:    mentor,
		LearnerWallet:   learner,
		RequesterWallet: requester,
		Skill:           skill,
		SkillLabel:      label,
		SpaceID:         s.spaceID,
		SessionDate:     date.UTC(),
		DurationMinutes: duration,
		Notes:           notes,
		CreatedAt:       now,
	}
	ttl := sessionTTL(sess, now)

	attrs := []ledger.Attribute{
		attr(attrMentorWallet, mentor),
		attr(attrLearnerWallet, learner),
		attr(attrSkill, skill),
		attr(attrStatus, string(domain.SessionPending)),
	}
	body := sessionPayload{
		SessionDate:     sess.SessionDate.Format(time.RFC3339),
		Duration:        duration,
		Notes:           notes,
		RequesterWallet: requester,
		SkillLabel:      label,
	}
	rcpt, err := s.createWithTxHash(ctx, typeSession, attrSessionKey, attrs, body, ttl)
	if err != nil {
		return domain.Session{}, err
	}
	sess.Key = rcpt.EntityKey
	sess.TxHash = rcpt.TxHash

	if err := s.writeConfirmation(ctx, sess, requester, ttl); err != nil {
		s.logger.WarnContext(ctx, "requester confirmation write failed", "sessionKey", sess.Key, "err", err)
	} else {
		markConfirmed(&sess, requester)
	}
	sess.Status = deriveStatus(sess, false, now)
	return sess, nil
}

// GetSession loads one session with its derived status.
func (s *Service) GetSession(ctx context.Context, key string) (domain.Session, error) {
	sess, _, err := s.loadSession(ctx, key)
	return sess, err
}

// ListSessions returns sessions sorted by date, optionally for one wallet and
// one derived status.
func (s *Service) ListSessions(ctx context.Context, f SessionFilter) ([]domain.Session, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("invalid_status")
	}
	wallet := ""
	if strings.TrimSpace(f.Wallet) != "" {
		w, ok := normalizeWallet(f.Wallet)
		if !ok {
			return nil, invalid("invalid_wallet")
		}
		wallet = w
	}

	var asMentor, asLearner []ledger.Entity
	g, gctx := errgroup.WithContext(ctx)
	if wallet != "" {
		g.Go(func() error {
			var err error
			asMentor, err = s.query(gctx, typeSession, attr(attrMentorWallet, wallet))
			return err
		})
		g.Go(func() error {
			var err error
			asLearner, err = s.query(gctx, typeSession, attr(attrLearnerWallet, wallet))
			return err
		})
	} else {
		g.Go(func() error {
			var err error
			asMentor, err = s.query(gctx, typeSession)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entities := make([]ledger.Entity, 0, len(asMentor)+len(asLearner))
	seen := make(map[string]bool)
	for _, e := range append(asMentor, asLearner...) {
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		entities = append(entities, e)
	}

	joined := make([]sideEntities, len(entities))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(sideQueryConcurrency)
	for i, e := range entities {
		g.Go(func() error {
			var err error
			joined[i], err = s.querySides(gctx, e.Key)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all sideEntities
	for _, j := range joined {
		all.hashes = append(all.hashes, j.hashes...)
		all.confirmations = append(all.confirmations, j.confirmations...)
		all.rejections = append(all.rejections, j.rejections...)
	}
	sides := indexSides(all.confirmations, all.rejections)
	txIndex := txHashIndex(all.hashes, attrSessionKey)
	now := s.now()

	out := make([]domain.Session, 0)
	for _, e := range entities {
		sess, ok := s.buildSession(ctx, e, txIndex, sides, now)
		if !ok {
			continue
		}
		if f.Status != "" && sess.Status != f.Status {
			continue
		}
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SessionDate.Equal(out[j].SessionDate) {
			return out[i].Key < out[j].Key
		}
		return out[i].SessionDate.Before(out[j].SessionDate)
	})
	return out, nil
}

// ConfirmSession records wallet's confirmation. Confirming twice is a no-op.
func (s *Service) ConfirmSession(ctx context.Context, key, wallet string) (domain.Session, error) {
	w, ok := normalizeWallet(wallet)
	if !ok {
		return domain.Session{}, invalid("invalid_wallet")
	}
	sess, e, err := s.loadSession(ctx, key)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.Participant(w) {
		return domain.Session{}, newError(ErrorForbidden, "not_a_participant", nil)
	}
	if sess.Status == domain.SessionDeclined {
		return domain.Session{}, newError(ErrorConflict, "session_declined", nil)
	}
	if confirmedBy(sess, w) {
		return sess, nil
	}

	now := s.now()
	if err := s.writeConfirmation(ctx, sess, w, remainingTTL(e, now)); err != nil {
		return domain.Session{}, err
	}
	markConfirmed(&sess, w)
	sess.Status = deriveStatus(sess, false, now)
	return sess, nil
}

// RejectSession declines a session that is not yet scheduled. Rejecting a
// declined session is a no-op.
func (s *Service) RejectSession(ctx context.Context, key, wallet, reason string) (domain.Session, error) {
	w, ok := normalizeWallet(wallet)
	if !ok {
		return domain.Session{}, invalid("invalid_wallet")
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxMessageLength {
		return domain.Session{}, invalid("reason_too_long")
	}
	sess, e, err := s.loadSession(ctx, key)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.Participant(w) {
		return domain.Session{}, newError(ErrorForbidden, "not_a_participant", nil)
	}
	switch sess.Status {
	case domain.SessionDeclined:
		return sess, nil
	case domain.SessionScheduled, domain.SessionCompleted:
		return domain.Session{}, newError(ErrorConflict, "session_already_scheduled", nil)
	}

	now := s.now().UTC()
	attrs := []ledger.Attribute{
		attr(attrSessionKey, sess.Key),
		attr(attrRejectedBy, w),
		attr(attrMentorWallet, sess.MentorWallet),
		attr(attrLearnerWallet, sess.LearnerWallet),
	}
	body := map[string]string{"reason": reason, "rejectedAt": now.Format(time.RFC3339)}
	rcpt, err := s.create(ctx, typeRejection, attrs, body, remainingTTL(e, now))
	if err != nil {
		return domain.Session{}, err
	}
	sess.Rejection = &domain.SessionRejection{Key: rcpt.EntityKey, RejectedBy: w, Reason: reason, RejectedAt: now}
	sess.Status = domain.SessionDeclined
	return sess, nil
}

// loadSession fetches the session entity and its side-entities in parallel.
func (s *Service) loadSession(ctx context.Context, key string) (domain.Session, ledger.Entity, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return domain.Session{}, ledger.Entity{}, invalid("empty_session_key")
	}

	var (
		e     ledger.Entity
		sides sideEntities
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		e, err = s.get(gctx, typeSession, key)
		return err
	})
	g.Go(func() error {
		var err error
		sides, err = s.querySides(gctx, key)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Session{}, ledger.Entity{}, err
	}

	sess, ok := s.buildSession(ctx, e, txHashIndex(sides.hashes, attrSessionKey), indexSides(sides.confirmations, sides.rejections), s.now())
	if !ok {
		return domain.Session{}, ledger.Entity{}, newError(ErrorInternal, "session_payload_malformed", nil)
	}
	return sess, e, nil
}

// sideEntities are the txhash, confirmation and rejection entities of sessions.
type sideEntities struct {
	hashes, confirmations, rejections []ledger.Entity
}

// querySides loads the side-entities of one session in parallel.
func (s *Service) querySides(ctx context.Context, key string) (sideEntities, error) {
	var out sideEntities
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.hashes, err = s.query(gctx, typeSession+txHashSuffix, attr(attrSessionKey, key))
		return err
	})
	g.Go(func() error {
		var err error
		out.confirmations, err = s.query(gctx, typeConfirmation, attr(attrSessionKey, key))
		return err
	})
	g.Go(func() error {
		var err error
		out.rejections, err = s.query(gctx, typeRejection, attr(attrSessionKey, key))
		return err
	})
	if err := g.Wait(); err != nil {
		return sideEntities{}, err
	}
	return out, nil
}

// buildSession reassembles a session from its entity and joined side-entities.
func (s *Service) buildSession(ctx context.Context, e ledger.Entity, hashes map[string]string, sides sessionSides, now time.Time) (domain.Session, bool) {
	p, ok := decodePayload(e)
	if !ok {
		s.skipMalformed(ctx, e)
		return domain.Session{}, false
	}
	date := p.timestamp("sessionDate")
	if date.IsZero() {
		s.skipMalformed(ctx, e)
		return domain.Session{}, false
	}
	sess := domain.Session{
		Key:             e.Key,
		MentorWallet:    e.Attr(attrMentorWallet),
		LearnerWallet:   e.Attr(attrLearnerWallet),
		RequesterWallet: p.text("requesterWallet"),
		Skill:           e.Attr(attrSkill),
		SkillLabel:      labelOr(p.text("skillLabel"), e.Attr(attrSkill)),
		SpaceID:         e.Attr(attrSpaceID),
		SessionDate:     date,
		DurationMinutes: p.number("duration"),
		Notes:           p.text("notes"),
		CreatedAt:       e.CreatedAt,
		TxHash:          hashes[e.Key],
	}
	if sess.DurationMinutes <= 0 {
		sess.DurationMinutes = defaultDuration
	}
	for w := range sides.confirmations[e.Key] {
		markConfirmed(&sess, w)
	}
	sess.Rejection = sides.rejections[e.Key]
	sess.Status = deriveStatus(sess, sess.Rejection != nil, now)
	return sess, true
}

// deriveStatus computes a session's status from its side-entities: any
// rejection declines it, confirmations from both participants schedule it, and
// a scheduled session whose end has passed is completed.
func deriveStatus(sess domain.Session, rejected bool, now time.Time) domain.SessionStatus {
	switch {
	case rejected:
		return domain.SessionDeclined
	case sess.ConfirmedByMentor && sess.ConfirmedByLearner:
		if !sess.EndsAt().After(now) {
			return domain.SessionCompleted
		}
		return domain.SessionScheduled
	default:
		return domain.SessionPending
	}
}

// indexSides groups confirmation and rejection entities by session key. The
// earliest rejection wins.
func indexSides(confirmations, rejections []ledger.Entity) sessionSides {
	sides := sessionSides{
		confirmations: make(map[string]map[string]bool),
		rejections:    make(map[string]*domain.SessionRejection),
	}
	for _, e := range confirmations {
		key, by := e.Attr(attrSessionKey), e.Attr(attrConfirmedBy)
		if key == "" || by == "" {
			continue
		}
		if sides.confirmations[key] == nil {
			sides.confirmations[key] = make(map[string]bool)
		}
		sides.confirmations[key][by] = true
	}
	for _, e := range rejections {
		key := e.Attr(attrSessionKey)
		if key == "" {
			continue
		}
		if prev, ok := sides.rejections[key]; ok && !e.CreatedAt.Before(prev.RejectedAt) {
			continue
		}
		rej := &domain.SessionRejection{Key: e.Key, RejectedBy: e.Attr(attrRejectedBy), RejectedAt: e.CreatedAt}
		if p, ok := decodePayload(e); ok {
			rej.Reason = p.text("reason")
		}
		sides.rejections[key] = rej
	}
	return sides
}

func (s *Service) writeConfirmation(ctx context.Context, sess domain.Session, wallet string, ttl time.Duration) error {
	now := s.now().UTC()
	attrs := []ledger.Attribute{
		attr(attrSessionKey, sess.Key),
		attr(attrConfirmedBy, wallet),
		attr(attrMentorWallet, sess.MentorWallet),
		attr(attrLearnerWallet, sess.LearnerWallet),
	}
	_, err := s.create(ctx, typeConfirmation, attrs, map[string]string{"confirmedAt": now.Format(time.RFC3339)}, ttl)
	return err
}

// markConfirmed sets the flag for wallet; non-participants are ignored.
func markConfirmed(sess *domain.Session, wallet string) {
	switch wallet {
	case sess.MentorWallet:
		sess.ConfirmedByMentor = true
	case sess.LearnerWallet:
		sess.ConfirmedByLearner = true
	}
}

func confirmedBy(sess domain.Session, wallet string) bool {
	return (wallet == sess.MentorWallet && sess.ConfirmedByMentor) ||
		(wallet == sess.LearnerWallet && sess.ConfirmedByLearner)
}

// sessionTTL keeps a session around for a grace period after it ends.
func sessionTTL(sess domain.Session, now time.Time) time.Duration {
	ttl := sess.EndsAt().Add(sessionGrace).Sub(now)
	if ttl < minSessionTTL {
		return minSessionTTL
	}
	return ttl
}

// remainingTTL lets side-entities expire with their session.
func remainingTTL(e ledger.Entity, now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < minSideEntityTTL {
		return minSideEntityTTL
	}
	return ttl
}
