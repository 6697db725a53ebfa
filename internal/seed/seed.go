// Package seed writes demo MentorGraph data through the use cases.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/fatih/color"

	"mentorgraph/internal/domain"
	"mentorgraph/internal/usecase"
)

// Service is the subset of use cases the seeder writes through.
type Service interface {
	CreateProfile(ctx context.Context, in usecase.CreateProfileInput) (domain.Profile, error)
	CreateAsk(ctx context.Context, in usecase.CreateAskInput) (domain.Ask, error)
	CreateOffer(ctx context.Context, in usecase.CreateOfferInput) (domain.Offer, error)
	RequestSession(ctx context.Context, in usecase.RequestSessionInput) (domain.Session, error)
	ConfirmSession(ctx context.Context, key, wallet string) (domain.Session, error)
}

// Backoff is an exponential retry policy.
type Backoff struct {
	Base     time.Duration
	Factor   float64
	Max      time.Duration
	Attempts int
}

var DefaultBackoff = Backoff{Base: 250 * time.Millisecond, Factor: 2, Max: 5 * time.Second, Attempts: 5}

// Delay returns the wait before retry number n (0 for the first retry).
func (b Backoff) Delay(n int) time.Duration {
	d := time.Duration(float64(b.Base) * math.Pow(b.Factor, float64(n)))
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}

// Summary counts what a run did.
type Summary struct {
	Created int
	Retries int
}

type Seeder struct {
	svc     Service
	out     io.Writer
	backoff Backoff
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func New(svc Service, out io.Writer) (*Seeder, error) {
	if svc == nil {
		return nil, errors.New("seed: service must not be nil")
	}
	if out == nil {
		out = io.Discard
	}
	return &Seeder{svc: svc, out: out, backoff: DefaultBackoff, sleep: sleepContext, now: time.Now}, nil
}

var (
	created = color.New(color.FgGreen).Sprint("CREATED")
	retried = color.New(color.FgYellow).Sprint("RETRY  ")
	failed  = color.New(color.FgRed).Sprint("FAILED ")
)

// Demo wallets.
const (
	MentorAda   = "0x1111111111111111111111111111111111111111"
	MentorGrace = "0x2222222222222222222222222222222222222222"
	LearnerLin  = "0x3333333333333333333333333333333333333333"
	LearnerSam  = "0x4444444444444444444444444444444444444444"
)

// Run writes the demo data set. It stops at the first write that fails after
// retries.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	profiles := []usecase.CreateProfileInput{
		{Wallet: MentorAda, DisplayName: "Ada", Bio: "Backend engineer, loves Go and distributed systems.", Timezone: "Europe/London", Languages: []string{"en"}, Skills: []string{"Go", "Distributed Systems"}, Seniority: "senior"},
		{Wallet: MentorGrace, DisplayName: "Grace", Bio: "Compiler nerd.", Timezone: "America/New_York", Languages: []string{"en", "es"}, Skills: []string{"Rust", "Compilers"}, Seniority: "staff"},
		{Wallet: LearnerLin, DisplayName: "Lin", Bio: "Learning backend development.", Timezone: "Asia/Singapore", Languages: []string{"en", "zh"}, Skills: []string{"Python"}, Seniority: "junior"},
		{Wallet: LearnerSam, DisplayName: "Sam", Timezone: "Europe/Berlin", Languages: []string{"de", "en"}, Skills: []string{"TypeScript"}, Seniority: "mid"},
	}
	for _, in := range profiles {
		p, err := retry(ctx, s, &sum, "profile", func(ctx context.Context) (domain.Profile, error) { return s.svc.CreateProfile(ctx, in) })
		if err != nil {
			return sum, err
		}
		s.report("profile", p.Key, p.DisplayName)
		sum.Created++
	}

	asks := []usecase.CreateAskInput{
		{Wallet: LearnerLin, Skill: "Go", Message: "Looking for help structuring my first Go service."},
		{Wallet: LearnerSam, Skill: "Rust", Message: "Want to understand lifetimes properly."},
	}
	for _, in := range asks {
		a, err := retry(ctx, s, &sum, "ask", func(ctx context.Context) (domain.Ask, error) { return s.svc.CreateAsk(ctx, in) })
		if err != nil {
			return sum, err
		}
		s.report("ask", a.Key, a.SkillLabel)
		sum.Created++
	}

	offers := []usecase.CreateOfferInput{
		{Wallet: MentorAda, Skill: "Go", Message: "Happy to review Go code and pair on concurrency.", AvailabilityWindow: "weekday evenings UTC"},
		{Wallet: MentorGrace, Skill: "Rust", Message: "Office hours for Rust beginners.", AvailabilityWindow: "weekends"},
	}
	for _, in := range offers {
		o, err := retry(ctx, s, &sum, "offer", func(ctx context.Context) (domain.Offer, error) { return s.svc.CreateOffer(ctx, in) })
		if err != nil {
			return sum, err
		}
		s.report("offer", o.Key, o.SkillLabel)
		sum.Created++
	}

	req := usecase.RequestSessionInput{
		MentorWallet:    MentorAda,
		LearnerWallet:   LearnerLin,
		RequesterWallet: LearnerLin,
		Skill:           "Go",
		SessionDate:     s.now().UTC().Add(24 * time.Hour).Truncate(time.Hour).Format(time.RFC3339),
		Duration:        60,
		Notes:           "Walk through a small HTTP service.",
	}
	sess, err := retry(ctx, s, &sum, "session", func(ctx context.Context) (domain.Session, error) { return s.svc.RequestSession(ctx, req) })
	if err != nil {
		return sum, err
	}
	sum.Created++
	sess, err = retry(ctx, s, &sum, "confirmation", func(ctx context.Context) (domain.Session, error) {
		return s.svc.ConfirmSession(ctx, sess.Key, MentorAda)
	})
	if err != nil {
		return sum, err
	}
	s.report("session", sess.Key, string(sess.Status))
	return sum, nil
}

func (s *Seeder) report(kind, key, detail string) {
	fmt.Fprintf(s.out, "%s %-8s %s %s\n", created, kind, key, detail)
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out.
func retry[T any](ctx context.Context, s *Seeder, sum *Summary, kind string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 0; attempt < s.backoff.Attempts; attempt++ {
		var out T
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !usecase.Retryable(err) || attempt == s.backoff.Attempts-1 {
			break
		}
		delay := s.backoff.Delay(attempt)
		fmt.Fprintf(s.out, "%s %-8s attempt %d failed, waiting %s: %v\n", retried, kind, attempt+1, delay, err)
		sum.Retries++
		if serr := s.sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("seed: %s: %w", kind, serr)
		}
	}
	fmt.Fprintf(s.out, "%s %-8s %v\n", failed, kind, err)
	return zero, fmt.Errorf("seed: %s: %w", kind, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
