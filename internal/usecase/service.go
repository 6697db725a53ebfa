package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"mentorgraph/internal/ledger"
)

// Entity types written to the ledger.
const (
	typeProfile          = "user_profile"
	typeAsk              = "ask"
	typeOffer            = "offer"
	typeSession          = "session"
	typeConfirmation     = "session_confirmation"
	typeRejection        = "session_rejection"
	typeFeedback         = "session_feedback"
	typeTrustEdge        = "trust_edge"
	txHashSuffix         = "_txhash"
	statusOpen           = "open"
	statusActive         = "active"
	defaultTrustEdgeKind = "endorsement"
	feedbackEdgeKind     = "feedback"
)

// Attribute names.
const (
	attrType          = ledger.TypeAttribute
	attrSpaceID       = "spaceId"
	attrCreatedAt     = "createdAt"
	attrWallet        = "wallet"
	attrDisplayName   = "displayName"
	attrUsername      = "username"
	attrSkill         = "skill"
	attrStatus        = "status"
	attrAskKey        = "askKey"
	attrOfferKey      = "offerKey"
	attrSessionKey    = "sessionKey"
	attrFeedbackKey   = "feedbackKey"
	attrTrustEdgeKey  = "trustEdgeKey"
	attrMentorWallet  = "mentorWallet"
	attrLearnerWallet = "learnerWallet"
	attrConfirmedBy   = "confirmedBy"
	attrRejectedBy    = "rejectedBy"
	attrFeedbackFrom  = "feedbackFrom"
	attrFeedbackTo    = "feedbackTo"
	attrFromWallet    = "fromWallet"
	attrToWallet      = "toWallet"
	attrKind          = "kind"
)

// sideQueryConcurrency bounds per-session side-entity lookups in ListSessions.
const sideQueryConcurrency = 8

const (
	defaultAskTTL     = time.Hour
	defaultOfferTTL   = 2 * time.Hour
	minPostingTTL     = time.Minute
	maxPostingTTL     = 30 * 24 * time.Hour
	longLivedTTL      = 365 * 24 * time.Hour
	sessionGrace      = 7 * 24 * time.Hour
	minSessionTTL     = 24 * time.Hour
	minSideEntityTTL  = time.Minute
	maxMessageLength  = 1000
	maxNotesLength    = 2000
	maxSkillLength    = 64
	defaultDuration   = 60
	minDuration       = 15
	maxDuration       = 240
	positiveRating    = 4
	ratingEdgeFactor  = 20
	maxTrustStrength  = 100
	defaultSpaceIDVal = "local-dev"
)

// Ledger is the subset of *ledger.Client the use cases need.
type Ledger interface {
	Create(ctx context.Context, in ledger.CreateInput) (ledger.Receipt, error)
	Get(ctx context.Context, key string) (ledger.Entity, error)
	QueryAll(ctx context.Context, filters ...ledger.Attribute) ([]ledger.Entity, error)
}

// Service implements every MentorGraph operation on top of the entity ledger.
// All reads and writes are scoped to one space.
type Service struct {
	ledger  Ledger
	spaceID string
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. An empty spaceID selects "local-dev".
func NewService(l Ledger, spaceID string, logger *slog.Logger) (*Service, error) {
	if l == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		spaceID = defaultSpaceIDVal
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, spaceID: spaceID, logger: logger, now: time.Now}, nil
}

// SpaceID returns the space every record is scoped to.
func (s *Service) SpaceID() string {
	return s.spaceID
}

func attr(key, value string) ledger.Attribute {
	return ledger.Attribute{Key: key, Value: value}
}

// baseAttributes returns the attributes every entity carries.
func (s *Service) baseAttributes(typ string, now time.Time) []ledger.Attribute {
	return []ledger.Attribute{
		attr(attrType, typ),
		attr(attrSpaceID, s.spaceID),
		attr(attrCreatedAt, now.UTC().Format(time.RFC3339)),
	}
}

// scoped prefixes filters with the type and space filters.
func (s *Service) scoped(typ string, filters ...ledger.Attribute) []ledger.Attribute {
	return append([]ledger.Attribute{attr(attrType, typ), attr(attrSpaceID, s.spaceID)}, filters...)
}

// create writes one primary entity and returns its receipt.
func (s *Service) create(ctx context.Context, typ string, attrs []ledger.Attribute, payload any, ttl time.Duration) (ledger.Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ledger.Receipt{}, newError(ErrorInternal, "payload_encode_error", err)
	}
	all := append(s.baseAttributes(typ, s.now()), attrs...)
	rcpt, err := s.ledger.Create(ctx, ledger.CreateInput{Attributes: all, Payload: body, TTL: ttl})
	if err != nil {
		return ledger.Receipt{}, newError(ErrorUpstream, "ledger_write_error", err)
	}
	return rcpt, nil
}

// createWithTxHash writes the primary entity and then its companion txhash
// entity linked through fkAttr. A failed companion write is logged and the
// primary receipt is still returned: the record exists, only the join is lost.
func (s *Service) createWithTxHash(ctx context.Context, typ, fkAttr string, attrs []ledger.Attribute, payload any, ttl time.Duration, companion ...ledger.Attribute) (ledger.Receipt, error) {
	rcpt, err := s.create(ctx, typ, attrs, payload, ttl)
	if err != nil {
		return ledger.Receipt{}, err
	}

	txAttrs := append([]ledger.Attribute{attr(fkAttr, rcpt.EntityKey)}, companion...)
	if _, err := s.create(ctx, typ+txHashSuffix, txAttrs, map[string]string{"txHash": rcpt.TxHash}, ttl); err != nil {
		s.logger.WarnContext(ctx, "txhash entity write failed", "type", typ, "entityKey", rcpt.EntityKey, "err", err)
	}
	return rcpt, nil
}

// query runs a scoped QueryAll and maps failures to an upstream error.
func (s *Service) query(ctx context.Context, typ string, filters ...ledger.Attribute) ([]ledger.Entity, error) {
	entities, err := s.ledger.QueryAll(ctx, s.scoped(typ, filters...)...)
	if err != nil {
		return nil, newError(ErrorUpstream, "ledger_query_error", err)
	}
	return entities, nil
}

// get loads one entity of typ in this space.
func (s *Service) get(ctx context.Context, typ, key string) (ledger.Entity, error) {
	e, err := s.ledger.Get(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Entity{}, newError(ErrorNotFound, typ+"_not_found", err)
	}
	if err != nil {
		return ledger.Entity{}, newError(ErrorUpstream, "ledger_read_error", err)
	}
	if e.Type() != typ || e.Attr(attrSpaceID) != s.spaceID {
		return ledger.Entity{}, newError(ErrorNotFound, typ+"_not_found", nil)
	}
	return e, nil
}
