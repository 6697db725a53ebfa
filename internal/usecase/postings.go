package usecase

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/ledger"
)

type CreateAskInput struct {
	Wallet     string `json:"wallet"`
	Skill      string `json:"skill"`
	Message    string `json:"message"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type CreateOfferInput struct {
	Wallet             string `json:"wallet"`
	Skill              string `json:"skill"`
	Message            string `json:"message"`
	AvailabilityWindow string `json:"availabilityWindow"`
	TTLSeconds         int    `json:"ttlSeconds"`
}

// PostingFilter narrows ListAsks and ListOffers. Empty fields match everything.
type PostingFilter struct {
	Wallet string
	Skill  string
}

type postingPayload struct {
	Message            string `json:"message"`
	SkillLabel         string `json:"skillLabel"`
	AvailabilityWindow string `json:"availabilityWindow,omitempty"`
	TTLSeconds         int    `json:"ttlSeconds"`
}

// postingInput is the validated common shape of an ask or an offer.
type postingInput struct {
	wallet  string
	skill   string
	label   string
	message string
	ttl     time.Duration
	ttlSecs int
	window  string
	fkAttr  string
	typ     string
	status  string
}

func validatePosting(wallet, skill, message string, ttlSeconds int, fallback time.Duration) (postingInput, error) {
	w, ok := normalizeWallet(wallet)
	if !ok {
		return postingInput{}, invalid("invalid_wallet")
	}
	key, label := normalizeSkill(skill)
	if key == "" {
		return postingInput{}, invalid("empty_skill")
	}
	if len(key) > maxSkillLength {
		return postingInput{}, invalid("skill_too_long")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return postingInput{}, invalid("empty_message")
	}
	if len(message) > maxMessageLength {
		return postingInput{}, invalid("message_too_long")
	}

	ttl := fallback
	if ttlSeconds != 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
		if ttl < minPostingTTL || ttl > maxPostingTTL {
			return postingInput{}, invalid("invalid_ttl")
		}
	}
	return postingInput{
		wallet:  w,
		skill:   key,
		label:   label,
		message: message,
		ttl:     ttl,
		ttlSecs: int(ttl / time.Second),
	}, nil
}

// writePosting stores the posting entity and its txhash companion.
func (s *Service) writePosting(ctx context.Context, in postingInput) (ledger.Receipt, error) {
	attrs := []ledger.Attribute{
		attr(attrWallet, in.wallet),
		attr(attrSkill, in.skill),
		attr(attrStatus, in.status),
	}
	body := postingPayload{
		Message:            in.message,
		SkillLabel:         in.label,
		AvailabilityWindow: in.window,
		TTLSeconds:         in.ttlSecs,
	}
	return s.createWithTxHash(ctx, in.typ, in.fkAttr, attrs, body, in.ttl, attr(attrWallet, in.wallet))
}

// CreateAsk posts a learner's request for help.
func (s *Service) CreateAsk(ctx context.Context, in CreateAskInput) (domain.Ask, error) {
	p, err := validatePosting(in.Wallet, in.Skill, in.Message, in.TTLSeconds, defaultAskTTL)
	if err != nil {
		return domain.Ask{}, err
	}
	p.typ, p.fkAttr, p.status = typeAsk, attrAskKey, statusOpen

	now := s.now().UTC()
	rcpt, err := s.writePosting(ctx, p)
	if err != nil {
		return domain.Ask{}, err
	}
	return domain.Ask{
		Key:        rcpt.EntityKey,
		Wallet:     p.wallet,
		Skill:      p.skill,
		SkillLabel: p.label,
		SpaceID:    s.spaceID,
		Status:     statusOpen,
		Message:    p.message,
		TTLSeconds: p.ttlSecs,
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.ttl),
		TxHash:     rcpt.TxHash,
	}, nil
}

// CreateOffer posts a mentor's availability.
func (s *Service) CreateOffer(ctx context.Context, in CreateOfferInput) (domain.Offer, error) {
	p, err := validatePosting(in.Wallet, in.Skill, in.Message, in.TTLSeconds, defaultOfferTTL)
	if err != nil {
		return domain.Offer{}, err
	}
	p.typ, p.fkAttr, p.status = typeOffer, attrOfferKey, statusActive
	p.window = strings.TrimSpace(in.AvailabilityWindow)

	now := s.now().UTC()
	rcpt, err := s.writePosting(ctx, p)
	if err != nil {
		return domain.Offer{}, err
	}
	return domain.Offer{
		Key:                rcpt.EntityKey,
		Wallet:             p.wallet,
		Skill:              p.skill,
		SkillLabel:         p.label,
		SpaceID:            s.spaceID,
		Status:             statusActive,
		Message:            p.message,
		AvailabilityWindow: p.window,
		TTLSeconds:         p.ttlSecs,
		CreatedAt:          now,
		ExpiresAt:          now.Add(p.ttl),
		TxHash:             rcpt.TxHash,
	}, nil
}

// postingFilters turns a filter into attribute filters, validating the wallet.
func postingFilters(f PostingFilter) ([]ledger.Attribute, error) {
	var out []ledger.Attribute
	if strings.TrimSpace(f.Wallet) != "" {
		w, ok := normalizeWallet(f.Wallet)
		if !ok {
			return nil, invalid("invalid_wallet")
		}
		out = append(out, attr(attrWallet, w))
	}
	if key, _ := normalizeSkill(f.Skill); key != "" {
		out = append(out, attr(attrSkill, key))
	}
	return out, nil
}

// queryWithTxHashes runs the primary and txhash queries in parallel and returns
// the primary entities plus the hash join index.
func (s *Service) queryWithTxHashes(ctx context.Context, typ, fkAttr string, filters []ledger.Attribute, txFilters []ledger.Attribute) ([]ledger.Entity, map[string]string, error) {
	var primary, companions []ledger.Entity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primary, err = s.query(gctx, typ, filters...)
		return err
	})
	g.Go(func() error {
		var err error
		companions, err = s.query(gctx, typ+txHashSuffix, txFilters...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return primary, txHashIndex(companions, fkAttr), nil
}

// walletOnly keeps only the wallet filter; txhash companions carry no skill.
func walletOnly(filters []ledger.Attribute) []ledger.Attribute {
	var out []ledger.Attribute
	for _, f := range filters {
		if f.Key == attrWallet {
			out = append(out, f)
		}
	}
	return out
}

// ListAsks returns live asks with their tx hashes, newest first.
func (s *Service) ListAsks(ctx context.Context, f PostingFilter) ([]domain.Ask, error) {
	filters, err := postingFilters(f)
	if err != nil {
		return nil, err
	}
	entities, hashes, err := s.queryWithTxHashes(ctx, typeAsk, attrAskKey, filters, walletOnly(filters))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Ask, 0, len(entities))
	for _, e := range entities {
		p, ok := decodePayload(e)
		if !ok {
			s.skipMalformed(ctx, e)
			continue
		}
		out = append(out, domain.Ask{
			Key:        e.Key,
			Wallet:     e.Attr(attrWallet),
			Skill:      e.Attr(attrSkill),
			SkillLabel: labelOr(p.text("skillLabel"), e.Attr(attrSkill)),
			SpaceID:    e.Attr(attrSpaceID),
			Status:     e.Attr(attrStatus),
			Message:    p.text("message"),
			TTLSeconds: p.number("ttlSeconds"),
			CreatedAt:  e.CreatedAt,
			ExpiresAt:  e.ExpiresAt,
			TxHash:     hashes[e.Key],
		})
	}
	newestFirst(out, func(a domain.Ask) time.Time { return a.CreatedAt }, func(a domain.Ask) string { return a.Key })
	return out, nil
}

// ListOffers returns live offers with their tx hashes, newest first.
func (s *Service) ListOffers(ctx context.Context, f PostingFilter) ([]domain.Offer, error) {
	filters, err := postingFilters(f)
	if err != nil {
		return nil, err
	}
	entities, hashes, err := s.queryWithTxHashes(ctx, typeOffer, attrOfferKey, filters, walletOnly(filters))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Offer, 0, len(entities))
	for _, e := range entities {
		p, ok := decodePayload(e)
		if !ok {
			s.skipMalformed(ctx, e)
			continue
		}
		out = append(out, domain.Offer{
			Key:                e.Key,
			Wallet:             e.Attr(attrWallet),
			Skill:              e.Attr(attrSkill),
			SkillLabel:         labelOr(p.text("skillLabel"), e.Attr(attrSkill)),
			SpaceID:            e.Attr(attrSpaceID),
			Status:             e.Attr(attrStatus),
			Message:            p.text("message"),
			AvailabilityWindow: p.text("availabilityWindow"),
			TTLSeconds:         p.number("ttlSeconds"),
			CreatedAt:          e.CreatedAt,
			ExpiresAt:          e.ExpiresAt,
			TxHash:             hashes[e.Key],
		})
	}
	newestFirst(out, func(o domain.Offer) time.Time { return o.CreatedAt }, func(o domain.Offer) string { return o.Key })
	return out, nil
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}
