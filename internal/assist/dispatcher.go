package assist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"concierge/internal/bus"
	"concierge/internal/domain"
	"concierge/internal/metrics"
	"concierge/internal/specialist"
)

// Result pairs a specialist invocation with its outcome. Failed invocations
// surface as Declined; callers never see specialist errors.
type Result struct {
	Specialist string
	Outcome    domain.Outcome
}

// Dispatcher fans a classified turn out to the matching specialists, all
// concurrently, and contains every per-specialist failure.
type Dispatcher struct {
	registry *specialist.Registry
	timeout  time.Duration
	events   *bus.EventBus
	logger   *slog.Logger
}

func NewDispatcher(registry *specialist.Registry, timeout time.Duration, events *bus.EventBus, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, timeout: timeout, events: events, logger: logger}
}

// Dispatch invokes every registered specialist matching the keywords and
// waits for all of them. Unknown keywords are skipped. The result slice
// preserves keyword order.
func (d *Dispatcher) Dispatch(ctx context.Context, keywords []string, uc *domain.UserContext) []Result {
	type target struct {
		keyword string
		s       domain.Specialist
	}
	var targets []target
	for _, kw := range keywords {
		s, ok := d.registry.Lookup(kw)
		if !ok {
			d.logger.Debug("no specialist for keyword", "turn", uc.TurnID, "keyword", kw)
			continue
		}
		targets = append(targets, target{kw, s})
	}
	if len(targets) == 0 {
		return nil
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for i, t := range targets {
		go func(i int, s domain.Specialist) {
			defer wg.Done()
			results[i] = Result{Specialist: s.Name(), Outcome: d.invoke(ctx, s, uc)}
		}(i, t.s)
	}
	wg.Wait()
	return results
}

// invoke runs one specialist under its own timeout. Errors and panics are
// logged, counted, and collapsed into Declined so siblings are unaffected.
func (d *Dispatcher) invoke(ctx context.Context, s domain.Specialist, uc *domain.UserContext) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("specialist panicked", "turn", uc.TurnID, "specialist", s.Name(), "panic", r)
			d.recordFailure(s.Name(), uc.TurnID)
			out = domain.Declined()
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := s.Handle(cctx, uc)
	if err != nil {
		d.logger.Warn("specialist failed", "turn", uc.TurnID, "specialist", s.Name(), "err", err)
		d.recordFailure(s.Name(), uc.TurnID)
		return domain.Declined()
	}
	return out
}

func (d *Dispatcher) recordFailure(name, turnID string) {
	metrics.SpecialistErrors.Inc()
	if d.events != nil {
		d.events.EmitAsync(bus.Event{Type: bus.EventSpecialistFailed, Source: "dispatcher", Payload: map[string]any{
			"specialist": name, "turn": turnID,
		}})
	}
}
