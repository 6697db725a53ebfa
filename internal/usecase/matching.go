package usecase

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"mentorgraph/internal/domain"
)

// ListMatches pairs open asks with active offers on the same skill. A wallet is
// never matched with itself. Results are ordered by ask, newest first, then by
// offer, newest first.
func (s *Service) ListMatches(ctx context.Context, skill string) ([]domain.Match, error) {
	f := PostingFilter{Skill: skill}

	var asks []domain.Ask
	var offers []domain.Offer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asks, err = s.ListAsks(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		offers, err = s.ListOffers(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bySkill := make(map[string][]domain.Offer)
	for _, o := range offers {
		if o.Status != statusActive {
			continue
		}
		bySkill[o.Skill] = append(bySkill[o.Skill], o)
	}

	matches := make([]domain.Match, 0)
	for _, a := range asks {
		if a.Status != statusOpen {
			continue
		}
		for _, o := range bySkill[a.Skill] {
			if o.Wallet == a.Wallet {
				continue
			}
			matches = append(matches, domain.Match{Skill: a.Skill, Ask: a, Offer: o})
		}
	}
	// asks and offers already arrive newest first; keep that order stable.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Ask.CreatedAt.After(matches[j].Ask.CreatedAt)
	})
	return matches, nil
}
