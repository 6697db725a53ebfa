package usecase

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/ledger"
)

// Trust edge directions relative to the filtered wallet.
const (
	DirectionIn   = "in"
	DirectionOut  = "out"
	DirectionBoth = "both"
)

type CreateTrustEdgeInput struct {
	FromWallet string `json:"fromWallet"`
	ToWallet   string `json:"toWallet"`
	Kind       string `json:"kind"`
	Strength   int    `json:"strength"`
	Context    string `json:"context"`
}

type TrustEdgeFilter struct {
	Wallet    string
	Direction string
}

type trustEdgePayload struct {
	Strength int    `json:"strength"`
	Context  string `json:"context,omitempty"`
}

// CreateTrustEdge records a directed endorsement between two wallets.
func (s *Service) CreateTrustEdge(ctx context.Context, in CreateTrustEdgeInput) (domain.TrustEdge, error) {
	from, ok := normalizeWallet(in.FromWallet)
	if !ok {
		return domain.TrustEdge{}, invalid("invalid_from_wallet")
	}
	to, ok := normalizeWallet(in.ToWallet)
	if !ok {
		return domain.TrustEdge{}, invalid("invalid_to_wallet")
	}
	if from == to {
		return domain.TrustEdge{}, invalid("self_trust_edge")
	}
	if in.Strength < 1 || in.Strength > maxTrustStrength {
		return domain.TrustEdge{}, invalid("invalid_strength")
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = defaultTrustEdgeKind
	}
	note := strings.TrimSpace(in.Context)
	if len(note) > maxMessageLength {
		return domain.TrustEdge{}, invalid("context_too_long")
	}

	attrs := []ledger.Attribute{
		attr(attrFromWallet, from),
		attr(attrToWallet, to),
		attr(attrKind, kind),
	}
	now := s.now().UTC()
	rcpt, err := s.createWithTxHash(ctx, typeTrustEdge, attrTrustEdgeKey, attrs, trustEdgePayload{Strength: in.Strength, Context: note}, longLivedTTL)
	if err != nil {
		return domain.TrustEdge{}, err
	}
	return domain.TrustEdge{
		Key:        rcpt.EntityKey,
		FromWallet: from,
		ToWallet:   to,
		Kind:       kind,
		Strength:   in.Strength,
		Context:    note,
		SpaceID:    s.spaceID,
		CreatedAt:  now,
		TxHash:     rcpt.TxHash,
	}, nil
}

// ListTrustEdges returns edges touching a wallet in the given direction, or
// every edge in the space when no wallet is given. Newest first.
func (s *Service) ListTrustEdges(ctx context.Context, f TrustEdgeFilter) ([]domain.TrustEdge, error) {
	direction := strings.ToLower(strings.TrimSpace(f.Direction))
	if direction == "" {
		direction = DirectionBoth
	}
	if direction != DirectionIn && direction != DirectionOut && direction != DirectionBoth {
		return nil, invalid("invalid_direction")
	}

	var queries [][]ledger.Attribute
	if strings.TrimSpace(f.Wallet) == "" {
		queries = append(queries, nil)
	} else {
		w, ok := normalizeWallet(f.Wallet)
		if !ok {
			return nil, invalid("invalid_wallet")
		}
		if direction != DirectionIn {
			queries = append(queries, []ledger.Attribute{attr(attrFromWallet, w)})
		}
		if direction != DirectionOut {
			queries = append(queries, []ledger.Attribute{attr(attrToWallet, w)})
		}
	}

	results := make([][]ledger.Entity, len(queries))
	var hashes []ledger.Entity
	g, gctx := errgroup.WithContext(ctx)
	for i, filters := range queries {
		g.Go(func() error {
			var err error
			results[i], err = s.query(gctx, typeTrustEdge, filters...)
			return err
		})
	}
	g.Go(func() error {
		var err error
		hashes, err = s.query(gctx, typeTrustEdge+txHashSuffix)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txIndex := txHashIndex(hashes, attrTrustEdgeKey)
	seen := make(map[string]bool)
	out := make([]domain.TrustEdge, 0)
	for _, entities := range results {
		for _, e := range entities {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			p, ok := decodePayload(e)
			if !ok {
				s.skipMalformed(ctx, e)
				continue
			}
			out = append(out, domain.TrustEdge{
				Key:        e.Key,
				FromWallet: e.Attr(attrFromWallet),
				ToWallet:   e.Attr(attrToWallet),
				Kind:       e.Attr(attrKind),
				Strength:   p.number("strength"),
				Context:    p.text("context"),
				SpaceID:    e.Attr(attrSpaceID),
				CreatedAt:  e.CreatedAt,
				TxHash:     txIndex[e.Key],
			})
		}
	}
	newestFirst(out, func(t domain.TrustEdge) time.Time { return t.CreatedAt }, func(t domain.TrustEdge) string { return t.Key })
	return out, nil
}
