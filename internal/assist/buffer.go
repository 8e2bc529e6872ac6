package assist

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"concierge/internal/bus"
	"concierge/internal/domain"
	"concierge/internal/metrics"
)

// FlushRequest is one coalesced turn: everything buffered for a sender during
// the quiet period, merged into a single text.
type FlushRequest struct {
	Channel     string
	ChatID      string
	SenderID    string
	DisplayName string
	Text        string
}

// FlushFunc receives a coalesced turn. The buffer calls it synchronously from
// the sender's worker goroutine, so turns for one sender never overlap.
type FlushFunc func(ctx context.Context, req FlushRequest)

// BufferConfig tunes the debounce buffer.
type BufferConfig struct {
	Debounce    time.Duration // quiet period before a flush
	IdleTimeout time.Duration // worker retires after this long with nothing to do
	MailboxSize int           // per-sender mailbox capacity

	Logger *slog.Logger
	Events *bus.EventBus
}

// Buffer coalesces rapid-fire messages per sender. Each active sender owns a
// worker goroutine with a buffered mailbox; the worker accumulates messages,
// restarts its flush timer on every arrival, and on expiry hands the merged
// batch to the flush function. Because the flush runs inside the worker,
// messages arriving mid-flush wait in the mailbox and become the next turn.
type Buffer struct {
	cfg   BufferConfig
	flush FlushFunc

	mu      sync.Mutex
	workers map[string]*senderWorker
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBuffer(cfg BufferConfig, flush FlushFunc) *Buffer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Buffer{
		cfg:     cfg,
		flush:   flush,
		workers: make(map[string]*senderWorker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue hands an inbound message to the sender's worker, spawning one if
// needed. A full mailbox drops the message.
func (b *Buffer) Enqueue(msg domain.InboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	w, ok := b.workers[msg.SenderID]
	if !ok {
		w = &senderWorker{
			buf:      b,
			senderID: msg.SenderID,
			mailbox:  make(chan domain.InboundMessage, b.cfg.MailboxSize),
		}
		b.workers[msg.SenderID] = w
		metrics.ActiveSenders.Inc()
		b.wg.Add(1)
		go w.run()
	}

	select {
	case w.mailbox <- msg:
		metrics.MessagesBuffered.Inc()
		if b.cfg.Events != nil {
			b.cfg.Events.EmitAsync(bus.Event{Type: bus.EventMessageBuffered, Source: "buffer", Payload: map[string]any{
				"sender": msg.SenderID, "channel": msg.Channel,
			}})
		}
	default:
		metrics.MessagesDropped.Inc()
		b.cfg.Logger.Warn("sender mailbox full, dropping message", "sender", msg.SenderID, "channel", msg.Channel)
		if b.cfg.Events != nil {
			b.cfg.Events.EmitAsync(bus.Event{Type: bus.EventMessageDropped, Source: "buffer", Payload: map[string]any{
				"sender": msg.SenderID,
			}})
		}
	}
}

// ActiveWorkers reports the number of live sender workers.
func (b *Buffer) ActiveWorkers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.workers)
}

// Close stops accepting messages, flushes what is pending, and waits for all
// workers to exit.
func (b *Buffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

type senderWorker struct {
	buf      *Buffer
	senderID string
	mailbox  chan domain.InboundMessage
}

func (w *senderWorker) run() {
	defer w.buf.wg.Done()

	flushTimer := time.NewTimer(w.buf.cfg.Debounce)
	stopTimer(flushTimer)
	defer flushTimer.Stop()

	idleTimer := time.NewTimer(w.buf.cfg.IdleTimeout)
	defer idleTimer.Stop()

	var pending []domain.InboundMessage

	for {
		select {
		case msg := <-w.mailbox:
			pending = append(pending, msg)
			stopTimer(flushTimer)
			flushTimer.Reset(w.buf.cfg.Debounce)

		case <-flushTimer.C:
			batch := pending
			pending = nil
			w.flushBatch(batch)
			stopTimer(idleTimer)
			idleTimer.Reset(w.buf.cfg.IdleTimeout)

		case <-idleTimer.C:
			if w.tryRetire(len(pending)) {
				return
			}
			idleTimer.Reset(w.buf.cfg.IdleTimeout)

		case <-w.buf.ctx.Done():
			// Drain the mailbox so nothing in flight is lost, then flush once.
			for {
				select {
				case msg := <-w.mailbox:
					pending = append(pending, msg)
					continue
				default:
				}
				break
			}
			w.flushBatch(pending)
			w.retire()
			return
		}
	}
}

// tryRetire removes the worker from the registry if it has nothing buffered.
// The check runs under the buffer mutex, so Enqueue can never hand a message
// to a worker that has decided to exit.
func (w *senderWorker) tryRetire(pendingLen int) bool {
	w.buf.mu.Lock()
	defer w.buf.mu.Unlock()
	if pendingLen > 0 || len(w.mailbox) > 0 {
		return false
	}
	delete(w.buf.workers, w.senderID)
	metrics.ActiveSenders.Dec()
	return true
}

func (w *senderWorker) retire() {
	w.buf.mu.Lock()
	defer w.buf.mu.Unlock()
	if _, ok := w.buf.workers[w.senderID]; ok {
		delete(w.buf.workers, w.senderID)
		metrics.ActiveSenders.Dec()
	}
}

func (w *senderWorker) flushBatch(batch []domain.InboundMessage) {
	if len(batch) == 0 {
		return
	}

	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Timestamp < batch[j].Timestamp })

	parts := make([]string, 0, len(batch))
	for _, m := range batch {
		if t := strings.TrimSpace(m.Content); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return
	}

	req := FlushRequest{
		Channel:     batch[0].Channel,
		ChatID:      batch[0].ChatID,
		SenderID:    w.senderID,
		DisplayName: batch[0].DisplayName,
		Text:        strings.Join(parts, ". "),
	}

	metrics.TurnsFlushed.Inc()
	if w.buf.cfg.Events != nil {
		w.buf.cfg.Events.EmitAsync(bus.Event{Type: bus.EventTurnFlushed, Source: "buffer", Payload: map[string]any{
			"sender": w.senderID, "messages": len(batch),
		}})
	}

	defer func() {
		if r := recover(); r != nil {
			w.buf.cfg.Logger.Error("flush panicked", "sender", w.senderID, "panic", r)
		}
	}()
	// The flush must be able to complete even when Close has already
	// canceled the buffer context, otherwise the final drain hands the
	// orchestrator a dead deadline. The orchestrator applies its own
	// per-turn timeout, and Close waits for the worker to finish.
	w.flushFn()(context.WithoutCancel(w.buf.ctx), req)
}

func (w *senderWorker) flushFn() FlushFunc {
	if w.buf.flush != nil {
		return w.buf.flush
	}
	return func(context.Context, FlushRequest) {}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
