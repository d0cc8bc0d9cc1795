// Package gateway simulates a card payment gateway. It never talks to a real
// financial network: outcomes are a deterministic function of the card number
// and the only realistic part is the latency.
package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Charge outcomes, keyed off the card number's final digit.
	// 0-7 approve, 8-9 decline. This is a demo seam, not a fraud model.
	maxApprovedLastDigit = 7

	// ReversalCard is the synthetic card used for refund reversals. Its last
	// digit guarantees the reversal simulation approves.
	ReversalCard = "1234567890123456"

	msgApproved = "Payment processed successfully"
	msgDeclined = "Payment failed - insufficient funds"
)

// Result is the gateway's verdict for a single simulated attempt.
type Result struct {
	Approved       bool          `json:"approved"`
	Message        string        `json:"message"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// SleepFunc suspends for d or until ctx is done. Injectable so tests run
// without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Simulator performs single-attempt simulated charges. It is safe for
// concurrent use; each in-flight charge gets its own randomized delay.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	sleep    SleepFunc
	minDelay time.Duration
	maxDelay time.Duration
}

type Option func(*Simulator)

// WithRand replaces the random source used for delay selection.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

// WithDelayRange overrides the simulated latency window [min, max).
func WithDelayRange(min, max time.Duration) Option {
	return func(s *Simulator) {
		s.minDelay = min
		s.maxDelay = max
	}
}

// WithSleep replaces the suspension primitive.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Simulator) { s.sleep = sleep }
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepFor,
		minDelay: 1 * time.Second,
		maxDelay: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) delay() time.Duration {
	if s.maxDelay <= s.minDelay {
		return s.minDelay
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minDelay + time.Duration(s.rng.Int63n(int64(s.maxDelay-s.minDelay)))
}

// Charge runs one simulated attempt. No retries: retry policy, if any wanted,
// belongs to the caller. The returned error is non-nil only when ctx expired
// before the simulated gateway answered.
func (s *Simulator) Charge(ctx context.Context, cardNumber string, amount decimal.Decimal) (Result, error) {
	d := s.delay()
	if err := s.sleep(ctx, d); err != nil {
		return Result{}, err
	}

	if approves(cardNumber) {
		return Result{Approved: true, Message: msgApproved, ProcessingTime: d}, nil
	}
	return Result{Approved: false, Message: msgDeclined, ProcessingTime: d}, nil
}

// Refund simulates a charge reversal against the fixed reversal card.
func (s *Simulator) Refund(ctx context.Context, amount decimal.Decimal) (Result, error) {
	return s.Charge(ctx, ReversalCard, amount)
}

func approves(cardNumber string) bool {
	if cardNumber == "" {
		return false
	}
	last := cardNumber[len(cardNumber)-1]
	if last < '0' || last > '9' {
		return false
	}
	return int(last-'0') <= maxApprovedLastDigit
}
