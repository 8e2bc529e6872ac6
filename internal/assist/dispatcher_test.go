package assist

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"concierge/internal/domain"
	"concierge/internal/metrics"
	"concierge/internal/specialist"
)

func newDispatcher(t *testing.T, timeout time.Duration, specs map[string]domain.Specialist) *Dispatcher {
	t.Helper()
	reg := specialist.NewRegistry()
	for kw, s := range specs {
		reg.Register(kw, s)
	}
	return NewDispatcher(reg, timeout, nil, slog.Default())
}

func TestDispatchInvokesMatchesConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(context.Context, *domain.UserContext) (domain.Outcome, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return domain.Handled("ok"), nil
	}
	d := newDispatcher(t, time.Second, map[string]domain.Specialist{
		"finance": &fakeSpecialist{name: "finance", handle: slow},
		"todo":    &fakeSpecialist{name: "todo", handle: slow},
	})

	results := d.Dispatch(context.Background(), []string{"finance", "todo"}, &domain.UserContext{TurnID: "t1"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if peak.Load() < 2 {
		t.Errorf("specialists did not run concurrently, peak=%d", peak.Load())
	}
}

func TestDispatchSkipsUnknownKeywords(t *testing.T) {
	fin := &fakeSpecialist{name: "finance", outcome: domain.Handled("ok")}
	d := newDispatcher(t, time.Second, map[string]domain.Specialist{"finance": fin})

	results := d.Dispatch(context.Background(), []string{"vault", "finance", "gym"}, &domain.UserContext{TurnID: "t1"})
	if len(results) != 1 || results[0].Specialist != "finance" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestDispatchNoTargets(t *testing.T) {
	d := newDispatcher(t, time.Second, nil)
	if results := d.Dispatch(context.Background(), []string{"vault"}, &domain.UserContext{}); results != nil {
		t.Errorf("expected nil results, got %+v", results)
	}
}

func TestDispatchContainsErrors(t *testing.T) {
	before := metrics.SpecialistErrors.Value()
	d := newDispatcher(t, time.Second, map[string]domain.Specialist{
		"finance": &fakeSpecialist{name: "finance", err: errors.New("db down")},
		"todo":    &fakeSpecialist{name: "todo", outcome: domain.Handled("still fine")},
	})

	results := d.Dispatch(context.Background(), []string{"finance", "todo"}, &domain.UserContext{TurnID: "t1"})
	byName := map[string]domain.Outcome{}
	for _, r := range results {
		byName[r.Specialist] = r.Outcome
	}
	if !byName["finance"].Empty() {
		t.Errorf("failed specialist should surface as declined: %+v", byName["finance"])
	}
	if byName["todo"].Text != "still fine" {
		t.Errorf("sibling affected by failure: %+v", byName["todo"])
	}
	if metrics.SpecialistErrors.Value() == before {
		t.Error("failure not counted")
	}
}

func TestDispatchContainsPanics(t *testing.T) {
	d := newDispatcher(t, time.Second, map[string]domain.Specialist{
		"finance": &fakeSpecialist{name: "finance", panics: true},
		"todo":    &fakeSpecialist{name: "todo", outcome: domain.Handled("alive")},
	})

	results := d.Dispatch(context.Background(), []string{"finance", "todo"}, &domain.UserContext{TurnID: "t1"})
	byName := map[string]domain.Outcome{}
	for _, r := range results {
		byName[r.Specialist] = r.Outcome
	}
	if !byName["finance"].Empty() {
		t.Errorf("panic should surface as declined: %+v", byName["finance"])
	}
	if byName["todo"].Text != "alive" {
		t.Errorf("sibling affected by panic: %+v", byName["todo"])
	}
}

func TestDispatchPerSpecialistTimeout(t *testing.T) {
	hang := func(ctx context.Context, _ *domain.UserContext) (domain.Outcome, error) {
		<-ctx.Done()
		return domain.Declined(), ctx.Err()
	}
	d := newDispatcher(t, 30*time.Millisecond, map[string]domain.Specialist{
		"finance": &fakeSpecialist{name: "finance", handle: hang},
		"todo":    &fakeSpecialist{name: "todo", outcome: domain.Handled("fast")},
	})

	start := time.Now()
	results := d.Dispatch(context.Background(), []string{"finance", "todo"}, &domain.UserContext{TurnID: "t1"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dispatch blocked past the timeout: %v", elapsed)
	}
	byName := map[string]domain.Outcome{}
	for _, r := range results {
		byName[r.Specialist] = r.Outcome
	}
	if !byName["finance"].Empty() {
		t.Errorf("timed-out specialist should be declined: %+v", byName["finance"])
	}
	if byName["todo"].Text != "fast" {
		t.Errorf("fast sibling should be unaffected: %+v", byName["todo"])
	}
}
