package assist

import (
	"context"
	"errors"
	"sync"

	"concierge/internal/domain"
)

// fakeCompleter returns scripted replies in order, then repeats the last one.
type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []struct {
		system, user string
		mode         domain.CompletionMode
	}
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string, mode domain.CompletionMode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		system, user string
		mode         domain.CompletionMode
	}{system, user, mode})
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeCompleter) Name() string                  { return "fake" }
func (f *fakeCompleter) Healthy(context.Context) error { return nil }

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSpecialist is scriptable per test.
type fakeSpecialist struct {
	name    string
	outcome domain.Outcome
	err     error
	panics  bool
	handle  func(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error)

	mu    sync.Mutex
	calls int
}

func (s *fakeSpecialist) Name() string { return s.name }

func (s *fakeSpecialist) Handle(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("scripted panic")
	}
	if s.handle != nil {
		return s.handle(ctx, uc)
	}
	return s.outcome, s.err
}

func (s *fakeSpecialist) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeSender records deliveries.
type fakeSender struct {
	mu   sync.Mutex
	sent []string
	opts []domain.SendOptions
	err  error
}

func (s *fakeSender) Send(_ context.Context, _ string, text string, opts domain.SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	s.opts = append(s.opts, opts)
	return nil
}

func (s *fakeSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// fakeProfiles serves one profile, or an error.
type fakeProfiles struct {
	profile domain.Profile
	err     error
}

func (p *fakeProfiles) GetProfile(_ context.Context, senderID string) (domain.Profile, error) {
	if p.err != nil {
		return domain.Profile{}, p.err
	}
	out := p.profile
	out.SenderID = senderID
	return out, nil
}

func (p *fakeProfiles) SaveProfile(context.Context, domain.Profile) error { return nil }

// fakeHistoryStore records appended turns.
type fakeHistoryStore struct {
	mu     sync.Mutex
	turns  []domain.Turn
	recent []domain.Turn
	err    error
}

func (h *fakeHistoryStore) AppendTurn(_ context.Context, senderID, u, a string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, domain.Turn{SenderID: senderID, UserText: u, AssistantText: a})
	return nil
}

func (h *fakeHistoryStore) LoadRecent(context.Context, string, int) ([]domain.Turn, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.recent, nil
}

func (h *fakeHistoryStore) LoadAll(context.Context, string) ([]domain.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Turn(nil), h.turns...), nil
}

func (h *fakeHistoryStore) appended() []domain.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Turn(nil), h.turns...)
}
