package usecase

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/ledger"
)

type CreateProfileInput struct {
	Wallet             string            `json:"wallet"`
	DisplayName        string            `json:"displayName"`
	Username           string            `json:"username"`
	Bio                string            `json:"bio"`
	Timezone           string            `json:"timezone"`
	Languages          []string          `json:"languages"`
	Skills             []string          `json:"skills"`
	Seniority          string            `json:"seniority"`
	ContactLinks       map[string]string `json:"contactLinks"`
	AvailabilityWindow string            `json:"availabilityWindow"`
}

type profilePayload struct {
	Bio                string            `json:"bio,omitempty"`
	Timezone           string            `json:"timezone,omitempty"`
	Languages          []string          `json:"languages,omitempty"`
	Skills             []string          `json:"skills,omitempty"`
	Seniority          string            `json:"seniority,omitempty"`
	ContactLinks       map[string]string `json:"contactLinks,omitempty"`
	AvailabilityWindow string            `json:"availabilityWindow,omitempty"`
}

// CreateProfile appends a new profile for the wallet. It becomes the current one.
func (s *Service) CreateProfile(ctx context.Context, in CreateProfileInput) (domain.Profile, error) {
	wallet, ok := normalizeWallet(in.Wallet)
	if !ok {
		return domain.Profile{}, invalid("invalid_wallet")
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		return domain.Profile{}, invalid("empty_display_name")
	}
	if len(in.Bio) > maxNotesLength {
		return domain.Profile{}, invalid("bio_too_long")
	}

	skills := make([]string, 0, len(in.Skills))
	for _, sk := range in.Skills {
		if _, label := normalizeSkill(sk); label != "" {
			skills = append(skills, label)
		}
	}

	body := profilePayload{
		Bio:                strings.TrimSpace(in.Bio),
		Timezone:           strings.TrimSpace(in.Timezone),
		Languages:          in.Languages,
		Skills:             skills,
		Seniority:          strings.TrimSpace(in.Seniority),
		ContactLinks:       in.ContactLinks,
		AvailabilityWindow: strings.TrimSpace(in.AvailabilityWindow),
	}
	username := strings.TrimSpace(in.Username)
	attrs := []ledger.Attribute{
		attr(attrWallet, wallet),
		attr(attrDisplayName, displayName),
		attr(attrUsername, username),
	}

	now := s.now().UTC()
	rcpt, err := s.create(ctx, typeProfile, attrs, body, longLivedTTL)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		Key:                rcpt.EntityKey,
		Wallet:             wallet,
		DisplayName:        displayName,
		Username:           username,
		Bio:                body.Bio,
		Timezone:           body.Timezone,
		Languages:          body.Languages,
		Skills:             body.Skills,
		Seniority:          body.Seniority,
		ContactLinks:       body.ContactLinks,
		AvailabilityWindow: body.AvailabilityWindow,
		SpaceID:            s.spaceID,
		CreatedAt:          now,
		TxHash:             rcpt.TxHash,
	}, nil
}

// GetProfile returns the newest profile for wallet with its rating summary.
func (s *Service) GetProfile(ctx context.Context, wallet string) (domain.Profile, error) {
	wallet, ok := normalizeWallet(wallet)
	if !ok {
		return domain.Profile{}, invalid("invalid_wallet")
	}

	var profiles, feedback []ledger.Entity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = s.query(gctx, typeProfile, attr(attrWallet, wallet))
		return err
	})
	g.Go(func() error {
		var err error
		feedback, err = s.query(gctx, typeFeedback, attr(attrFeedbackTo, wallet))
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Profile{}, err
	}

	current := s.currentProfiles(ctx, profiles)
	p, ok := current[wallet]
	if !ok {
		return domain.Profile{}, newError(ErrorNotFound, "profile_not_found", nil)
	}
	applyRatings(&p, ratingIndex(feedback))
	return p, nil
}

// ListProfiles returns the current profile of every wallet, optionally only
// those listing skill, sorted by display name.
func (s *Service) ListProfiles(ctx context.Context, skill string) ([]domain.Profile, error) {
	skillKey, _ := normalizeSkill(skill)

	var profiles, feedback []ledger.Entity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = s.query(gctx, typeProfile)
		return err
	})
	g.Go(func() error {
		var err error
		feedback, err = s.query(gctx, typeFeedback)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ratings := ratingIndex(feedback)
	out := make([]domain.Profile, 0)
	for _, p := range s.currentProfiles(ctx, profiles) {
		if skillKey != "" && !hasSkill(p.Skills, skillKey) {
			continue
		}
		applyRatings(&p, ratings)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a == b {
			return out[i].Wallet < out[j].Wallet
		}
		return a < b
	})
	return out, nil
}

// currentProfiles decodes profile entities and keeps the newest per wallet.
func (s *Service) currentProfiles(ctx context.Context, entities []ledger.Entity) map[string]domain.Profile {
	out := make(map[string]domain.Profile)
	for _, e := range entities {
		p, ok := decodePayload(e)
		if !ok {
			s.skipMalformed(ctx, e)
			continue
		}
		profile := domain.Profile{
			Key:                e.Key,
			Wallet:             e.Attr(attrWallet),
			DisplayName:        e.Attr(attrDisplayName),
			Username:           e.Attr(attrUsername),
			Bio:                p.text("bio"),
			Timezone:           p.text("timezone"),
			Languages:          p.list("languages"),
			Skills:             p.list("skills"),
			Seniority:          p.text("seniority"),
			ContactLinks:       p.dict("contactLinks"),
			AvailabilityWindow: p.text("availabilityWindow"),
			SpaceID:            e.Attr(attrSpaceID),
			CreatedAt:          e.CreatedAt,
		}
		if prev, seen := out[profile.Wallet]; seen && !profile.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		out[profile.Wallet] = profile
	}
	return out
}

type ratingSummary struct {
	total int
	count int
}

// ratingIndex sums feedback ratings per recipient wallet.
func ratingIndex(feedback []ledger.Entity) map[string]ratingSummary {
	out := make(map[string]ratingSummary)
	for _, e := range feedback {
		p, ok := decodePayload(e)
		if !ok {
			continue
		}
		rating := p.number("rating")
		if rating < 1 || rating > 5 {
			continue
		}
		to := e.Attr(attrFeedbackTo)
		r := out[to]
		r.total += rating
		r.count++
		out[to] = r
	}
	return out
}

func applyRatings(p *domain.Profile, ratings map[string]ratingSummary) {
	r, ok := ratings[p.Wallet]
	if !ok || r.count == 0 {
		return
	}
	p.FeedbackCount = r.count
	p.AverageRating = float64(r.total) / float64(r.count)
}

func hasSkill(skills []string, key string) bool {
	for _, sk := range skills {
		if k, _ := normalizeSkill(sk); k == key {
			return true
		}
	}
	return false
}
