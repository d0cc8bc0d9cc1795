package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestSimulator() *Simulator {
	return New(
		WithRand(rand.New(rand.NewSource(1))),
		WithSleep(noSleep),
	)
}

func TestCharge_OutcomeByLastDigit(t *testing.T) {
	sim := newTestSimulator()
	amount := decimal.NewFromInt(100)

	for digit := byte('0'); digit <= '7'; digit++ {
		number := "424242424242424" + string(digit)
		res, err := sim.Charge(context.Background(), number, amount)
		if err != nil {
			t.Fatalf("Charge(%s): %v", number, err)
		}
		if !res.Approved {
			t.Errorf("card ending in %c: approved = false, want true", digit)
		}
		if res.Message != "Payment processed successfully" {
			t.Errorf("unexpected approval message %q", res.Message)
		}
	}

	for digit := byte('8'); digit <= '9'; digit++ {
		number := "424242424242424" + string(digit)
		res, err := sim.Charge(context.Background(), number, amount)
		if err != nil {
			t.Fatalf("Charge(%s): %v", number, err)
		}
		if res.Approved {
			t.Errorf("card ending in %c: approved = true, want false", digit)
		}
		if res.Message != "Payment failed - insufficient funds" {
			t.Errorf("unexpected decline message %q", res.Message)
		}
	}
}

func TestCharge_DeterministicAcrossRepeats(t *testing.T) {
	sim := newTestSimulator()
	amount := decimal.NewFromInt(50)

	for i := 0; i < 20; i++ {
		res, err := sim.Charge(context.Background(), "4242424242424248", amount)
		if err != nil {
			t.Fatal(err)
		}
		if res.Approved {
			t.Fatalf("iteration %d: card ending in 8 approved", i)
		}
	}
	for i := 0; i < 20; i++ {
		res, err := sim.Charge(context.Background(), "4242424242424242", amount)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Approved {
			t.Fatalf("iteration %d: card ending in 2 declined", i)
		}
	}
}

func TestCharge_DelayWithinRange(t *testing.T) {
	var recorded []time.Duration
	sim := New(
		WithRand(rand.New(rand.NewSource(7))),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			recorded = append(recorded, d)
			return nil
		}),
	)

	for i := 0; i < 100; i++ {
		if _, err := sim.Charge(context.Background(), "4242424242424242", decimal.NewFromInt(1)); err != nil {
			t.Fatal(err)
		}
	}

	for _, d := range recorded {
		if d < 1*time.Second || d >= 3*time.Second {
			t.Fatalf("delay %v outside [1s, 3s)", d)
		}
	}
}

func TestCharge_ReportsProcessingTime(t *testing.T) {
	sim := newTestSimulator()
	res, err := sim.Charge(context.Background(), "4242424242424242", decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.ProcessingTime < 1*time.Second || res.ProcessingTime >= 3*time.Second {
		t.Errorf("ProcessingTime %v outside simulated window", res.ProcessingTime)
	}
}

func TestCharge_ContextCancellation(t *testing.T) {
	sim := New(WithRand(rand.New(rand.NewSource(1))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sim.Charge(ctx, "4242424242424242", decimal.NewFromInt(1)); err == nil {
		t.Fatal("Charge with cancelled context returned nil error")
	}
}

func TestCharge_ConcurrentInvocations(t *testing.T) {
	sim := newTestSimulator()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := sim.Charge(context.Background(), "4242424242424242", decimal.NewFromInt(10))
			if err != nil {
				errs <- err
				return
			}
			if !res.Approved {
				errs <- errors.New("approved card declined under concurrency")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent charge: %v", err)
	}
}

func TestRefund_AlwaysApproves(t *testing.T) {
	sim := newTestSimulator()
	for i := 0; i < 10; i++ {
		res, err := sim.Refund(context.Background(), decimal.NewFromInt(25))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Approved {
			t.Fatal("refund reversal declined; reversal card must approve")
		}
	}
}
