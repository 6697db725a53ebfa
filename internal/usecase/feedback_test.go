package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mentorgraph/internal/domain"
)

func completedTestSession(t *testing.T, svc *Service, clock *testClock) domain.Session {
	t.Helper()
	sess := requestTestSession(t, svc, clock)
	_, err := svc.ConfirmSession(context.Background(), sess.Key, mentorWallet)
	require.NoError(t, err)
	clock.advance(3 * time.Hour)
	return sess
}

func TestCreateFeedback_WritesFeedbackAndTrustEdge(t *testing.T) {
	svc, l, clock := newTestService(t)
	ctx := context.Background()
	sess := completedTestSession(t, svc, clock)

	fb, err := svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: sess.Key, FromWallet: learnerWallet, Rating: 5, Notes: " great "})
	require.NoError(t, err)
	require.Equal(t, mentorWallet, fb.FeedbackTo)
	require.Equal(t, "great", fb.Notes)
	require.NotEmpty(t, fb.TxHash)

	edges, err := svc.ListTrustEdges(ctx, TrustEdgeFilter{Wallet: mentorWallet, Direction: DirectionIn})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "feedback", edges[0].Kind)
	require.Equal(t, 100, edges[0].Strength)
	require.Equal(t, learnerWallet, edges[0].FromWallet)
	require.Equal(t, "session:"+sess.Key, edges[0].Context)

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: sess.Key, FromWallet: learnerWallet, Rating: 4})
	expectError(t, err, ErrorConflict, "feedback_already_submitted")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: sess.Key, FromWallet: mentorWallet, Rating: 3})
	require.NoError(t, err)
	require.Equal(t, 1, l.countType("trust_edge"))

	p, err := svc.CreateProfile(ctx, CreateProfileInput{Wallet: mentorWallet, DisplayName: "Ada"})
	require.NoError(t, err)
	got, err := svc.GetProfile(ctx, p.Wallet)
	require.NoError(t, err)
	require.Equal(t, 1, got.FeedbackCount)
	require.InDelta(t, 5.0, got.AverageRating, 0.001)
}

func TestCreateFeedback_Rules(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	pending := requestTestSession(t, svc, clock)

	_, err := svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: pending.Key, FromWallet: "x", Rating: 5})
	expectError(t, err, ErrorInvalidInput, "invalid_wallet")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: pending.Key, FromWallet: learnerWallet, Rating: 0})
	expectError(t, err, ErrorInvalidInput, "invalid_rating")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: pending.Key, FromWallet: learnerWallet, Rating: 6})
	expectError(t, err, ErrorInvalidInput, "invalid_rating")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: pending.Key, FromWallet: learnerWallet, Rating: 5, TechnicalDxFeedback: strings.Repeat("d", 2001)})
	expectError(t, err, ErrorInvalidInput, "notes_too_long")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: pending.Key, FromWallet: otherWallet, Rating: 5})
	expectError(t, err, ErrorForbidden, "not_a_participant")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: pending.Key, FromWallet: learnerWallet, Rating: 5})
	expectError(t, err, ErrorConflict, "session_not_completed")

	_, err = svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: "0xnope", FromWallet: learnerWallet, Rating: 5})
	expectError(t, err, ErrorNotFound, "session_not_found")
}

func TestCreateFeedback_TrustEdgeFailureIsLogged(t *testing.T) {
	svc, l, clock := newTestService(t)
	sess := completedTestSession(t, svc, clock)
	l.createErr = failTypes("trust_edge")

	fb, err := svc.CreateFeedback(context.Background(), CreateFeedbackInput{SessionKey: sess.Key, FromWallet: mentorWallet, Rating: 4})
	require.NoError(t, err)
	require.Equal(t, learnerWallet, fb.FeedbackTo)
	require.Equal(t, 0, l.countType("trust_edge"))
}

func TestListFeedback_Filters(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	sess := completedTestSession(t, svc, clock)

	first, err := svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: sess.Key, FromWallet: learnerWallet, Rating: 2, TechnicalDxFeedback: "docs were thin"})
	require.NoError(t, err)
	clock.advance(time.Minute)
	second, err := svc.CreateFeedback(ctx, CreateFeedbackInput{SessionKey: sess.Key, FromWallet: mentorWallet, Rating: 5})
	require.NoError(t, err)

	bySession, err := svc.ListFeedback(ctx, FeedbackFilter{SessionKey: strings.ToUpper(sess.Key)})
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	require.Equal(t, second.Key, bySession[0].Key)
	require.Equal(t, first.TxHash, bySession[1].TxHash)
	require.Equal(t, "docs were thin", bySession[1].TechnicalDxFeedback)

	forMentor, err := svc.ListFeedback(ctx, FeedbackFilter{Wallet: mentorWallet})
	require.NoError(t, err)
	require.Len(t, forMentor, 1)
	require.Equal(t, 2, forMentor[0].Rating)

	_, err = svc.ListFeedback(ctx, FeedbackFilter{Wallet: "0x"})
	expectError(t, err, ErrorInvalidInput, "invalid_wallet")
}
