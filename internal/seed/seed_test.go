package seed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/integrations/signer"
	"mentorgraph/internal/ledger"
	"mentorgraph/internal/usecase"
)

type flakyService struct {
	*usecase.Service
	askFailures int
	askErr      error
	askCalls    int
}

func (f *flakyService) CreateAsk(ctx context.Context, in usecase.CreateAskInput) (domain.Ask, error) {
	f.askCalls++
	if f.askFailures > 0 {
		f.askFailures--
		return domain.Ask{}, f.askErr
	}
	return f.Service.CreateAsk(ctx, in)
}

func newUsecaseService(t *testing.T) *usecase.Service {
	t.Helper()
	sg, err := signer.Generate()
	require.NoError(t, err)
	client, err := ledger.NewClient(ledger.NewMemoryStore(), sg, 0)
	require.NoError(t, err)
	svc, err := usecase.NewService(client, "seed-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return svc
}

func newTestSeeder(t *testing.T, svc Service, out io.Writer) (*Seeder, *[]time.Duration) {
	t.Helper()
	s, err := New(svc, out)
	require.NoError(t, err)
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestNew_ValidatesDependency(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff
	require.Equal(t, 250*time.Millisecond, b.Delay(0))
	require.Equal(t, 500*time.Millisecond, b.Delay(1))
	require.Equal(t, 4*time.Second, b.Delay(4))
	require.Equal(t, 5*time.Second, b.Delay(5))
	require.Equal(t, 5*time.Second, b.Delay(100))
}

func TestRun_WritesDemoData(t *testing.T) {
	svc := newUsecaseService(t)
	var out bytes.Buffer
	s, slept := newTestSeeder(t, svc, &out)

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9, sum.Created)
	require.Zero(t, sum.Retries)
	require.Empty(t, *slept)
	require.Contains(t, out.String(), "profile")
	require.Contains(t, out.String(), "scheduled")

	profiles, err := svc.ListProfiles(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, profiles, 4)

	matches, err := svc.ListMatches(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	sessions, err := svc.ListSessions(context.Background(), usecase.SessionFilter{Wallet: MentorAda})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, domain.SessionScheduled, sessions[0].Status)
}

func TestRun_RetriesUpstreamErrors(t *testing.T) {
	svc := &flakyService{
		Service:     newUsecaseService(t),
		askFailures: 2,
		askErr:      &usecase.Error{Code: usecase.ErrorUpstream, Reason: "ledger_write_error"},
	}
	var out bytes.Buffer
	s, slept := newTestSeeder(t, svc, &out)

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Retries)
	require.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, *slept)
	require.Equal(t, 4, svc.askCalls)
	require.Contains(t, out.String(), "attempt 1 failed")
}

func TestRun_GivesUpAfterAttempts(t *testing.T) {
	svc := &flakyService{
		Service:     newUsecaseService(t),
		askFailures: 10,
		askErr:      &usecase.Error{Code: usecase.ErrorUpstream, Reason: "ledger_write_error"},
	}
	s, slept := newTestSeeder(t, svc, io.Discard)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, usecase.ErrorUpstream, usecase.CodeOf(err))
	require.Equal(t, 5, svc.askCalls)
	require.Len(t, *slept, 4)
}

func TestRun_DoesNotRetryValidationErrors(t *testing.T) {
	svc := &flakyService{
		Service:     newUsecaseService(t),
		askFailures: 1,
		askErr:      &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_skill"},
	}
	s, slept := newTestSeeder(t, svc, io.Discard)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, svc.askCalls)
	require.Empty(t, *slept)
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	svc := &flakyService{
		Service:     newUsecaseService(t),
		askFailures: 3,
		askErr:      &usecase.Error{Code: usecase.ErrorUpstream, Reason: "ledger_write_error"},
	}
	s, err := New(svc, io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err = s.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}
