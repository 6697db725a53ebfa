package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAsk_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		in     CreateAskInput
		reason string
	}{
		{"bad wallet", CreateAskInput{Wallet: "0x1", Skill: "go", Message: "m"}, "invalid_wallet"},
		{"empty skill", CreateAskInput{Wallet: learnerWallet, Skill: "  ", Message: "m"}, "empty_skill"},
		{"long skill", CreateAskInput{Wallet: learnerWallet, Skill: strings.Repeat("s", 65), Message: "m"}, "skill_too_long"},
		{"empty message", CreateAskInput{Wallet: learnerWallet, Skill: "go"}, "empty_message"},
		{"long message", CreateAskInput{Wallet: learnerWallet, Skill: "go", Message: strings.Repeat("m", 1001)}, "message_too_long"},
		{"ttl too short", CreateAskInput{Wallet: learnerWallet, Skill: "go", Message: "m", TTLSeconds: 59}, "invalid_ttl"},
		{"ttl too long", CreateAskInput{Wallet: learnerWallet, Skill: "go", Message: "m", TTLSeconds: 31 * 24 * 3600}, "invalid_ttl"},
		{"negative ttl", CreateAskInput{Wallet: learnerWallet, Skill: "go", Message: "m", TTLSeconds: -5}, "invalid_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAsk(ctx, tt.in)
			expectError(t, err, ErrorInvalidInput, tt.reason)
		})
	}
}

func TestCreateAsk_DefaultsAndNormalization(t *testing.T) {
	svc, l, clock := newTestService(t)

	ask, err := svc.CreateAsk(context.Background(), CreateAskInput{
		Wallet:  "0x" + strings.ToUpper(learnerWallet[2:]),
		Skill:   "  Distributed   Systems ",
		Message: " need a review ",
	})
	require.NoError(t, err)
	require.Equal(t, learnerWallet, ask.Wallet)
	require.Equal(t, "distributed systems", ask.Skill)
	require.Equal(t, "Distributed Systems", ask.SkillLabel)
	require.Equal(t, "need a review", ask.Message)
	require.Equal(t, "open", ask.Status)
	require.Equal(t, 3600, ask.TTLSeconds)
	require.Equal(t, clock.t.Add(time.Hour), ask.ExpiresAt)
	require.Equal(t, time.Hour, l.creates[0].TTL)
}

func TestCreateOffer_CustomTTL(t *testing.T) {
	svc, l, _ := newTestService(t)

	offer, err := svc.CreateOffer(context.Background(), CreateOfferInput{
		Wallet:             mentorWallet,
		Skill:              "Go",
		Message:            "happy to pair",
		AvailabilityWindow: " weekday evenings ",
		TTLSeconds:         600,
	})
	require.NoError(t, err)
	require.Equal(t, "active", offer.Status)
	require.Equal(t, "weekday evenings", offer.AvailabilityWindow)
	require.Equal(t, 600, offer.TTLSeconds)
	require.Equal(t, 10*time.Minute, l.creates[0].TTL)
	require.Equal(t, 10*time.Minute, l.creates[1].TTL)
}

func TestListAsks_FiltersJoinsAndOrders(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	older, err := svc.CreateAsk(ctx, CreateAskInput{Wallet: learnerWallet, Skill: "Go", Message: "first"})
	require.NoError(t, err)
	clock.advance(time.Minute)
	newer, err := svc.CreateAsk(ctx, CreateAskInput{Wallet: learnerWallet, Skill: "go", Message: "second"})
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = svc.CreateAsk(ctx, CreateAskInput{Wallet: otherWallet, Skill: "Rust", Message: "third"})
	require.NoError(t, err)

	asks, err := svc.ListAsks(ctx, PostingFilter{Wallet: learnerWallet, Skill: "GO"})
	require.NoError(t, err)
	require.Len(t, asks, 2)
	require.Equal(t, newer.Key, asks[0].Key)
	require.Equal(t, older.Key, asks[1].Key)
	require.Equal(t, newer.TxHash, asks[0].TxHash)
	require.Equal(t, "second", asks[0].Message)
	require.Equal(t, "Go", asks[1].SkillLabel)

	all, err := svc.ListAsks(ctx, PostingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = svc.ListAsks(ctx, PostingFilter{Wallet: "bogus"})
	expectError(t, err, ErrorInvalidInput, "invalid_wallet")
}

func TestListOffers_HidesExpired(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOffer(ctx, CreateOfferInput{Wallet: mentorWallet, Skill: "go", Message: "short", TTLSeconds: 60})
	require.NoError(t, err)
	long, err := svc.CreateOffer(ctx, CreateOfferInput{Wallet: mentorWallet, Skill: "go", Message: "long"})
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	offers, err := svc.ListOffers(ctx, PostingFilter{Wallet: mentorWallet})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, long.Key, offers[0].Key)
	require.Equal(t, long.TxHash, offers[0].TxHash)
}
