package usecase

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"mentorgraph/internal/domain"
)

// GetDashboard gathers everything known about one wallet. A wallet without a
// profile still gets a dashboard; any other failure fails the call.
func (s *Service) GetDashboard(ctx context.Context, wallet string) (domain.Dashboard, error) {
	w, ok := normalizeWallet(wallet)
	if !ok {
		return domain.Dashboard{}, invalid("invalid_wallet")
	}

	d := domain.Dashboard{Wallet: w}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.GetProfile(gctx, w)
		var uerr *Error
		if errors.As(err, &uerr) && uerr.Code == ErrorNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		d.Profile = &p
		return nil
	})
	g.Go(func() error {
		var err error
		d.Asks, err = s.ListAsks(gctx, PostingFilter{Wallet: w})
		return err
	})
	g.Go(func() error {
		var err error
		d.Offers, err = s.ListOffers(gctx, PostingFilter{Wallet: w})
		return err
	})
	g.Go(func() error {
		var err error
		d.Sessions, err = s.ListSessions(gctx, SessionFilter{Wallet: w})
		return err
	})
	g.Go(func() error {
		var err error
		d.FeedbackReceived, err = s.ListFeedback(gctx, FeedbackFilter{Wallet: w})
		return err
	})
	g.Go(func() error {
		var err error
		d.TrustEdges, err = s.ListTrustEdges(gctx, TrustEdgeFilter{Wallet: w, Direction: DirectionBoth})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Dashboard{}, err
	}

	d.SessionCounts = map[domain.SessionStatus]int{
		domain.SessionPending:   0,
		domain.SessionScheduled: 0,
		domain.SessionCompleted: 0,
		domain.SessionDeclined:  0,
	}
	for _, sess := range d.Sessions {
		d.SessionCounts[sess.Status]++
	}
	return d, nil
}
