package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/events"
)

// Invoker triggers backend processing for one user message. Invoke blocks
// until the backend is done and must return only after every chunk event
// for the request has been delivered to the session stream; the controller
// treats that ordering as a contract, it does not re-derive it.
type Invoker interface {
	Invoke(ctx context.Context, text string) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, text string) error

func (f InvokerFunc) Invoke(ctx context.Context, text string) error { return f(ctx, text) }

var (
	// ErrEmptyInput rejects submissions that trim to nothing.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy rejects submissions while a request is in flight.
	ErrBusy = errors.New("session is busy")
	// ErrClosed rejects operations on a torn-down controller.
	ErrClosed = errors.New("controller is closed")
)

// Controller is the streaming session controller: it owns the append-only
// transcript, the busy flag, and the delta accumulation buffer, and it is
// the only writer of all three. Chunk events from one lifetime subscription
// and the terminal invoker resolution are folded under a single mutex, so
// the observable state always sits exactly on a transition boundary.
//
// State machine: Idle and AwaitingResponse, discriminated by busy.
// Submit moves Idle to AwaitingResponse; the invoker resolution moves back.
// Deltas accumulate in the buffer; the buffer is flushed as one assistant
// entry on success and discarded on failure, exactly once per request.
type Controller struct {
	id         string
	invoker    Invoker
	subscriber message.Subscriber
	logger     zerolog.Logger

	mu         sync.Mutex
	transcript []TranscriptEntry
	busy       bool
	buffer     strings.Builder

	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	updates chan struct{}
}

type ControllerOption func(*Controller)

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// New builds a controller for one session. An empty id gets a fresh UUID.
// The subscriber may be nil; the controller then runs without streaming
// visibility and relies on invoker resolutions alone.
func New(id string, invoker Invoker, subscriber message.Subscriber, options ...ControllerOption) (*Controller, error) {
	if invoker == nil {
		return nil, errors.New("invoker is nil")
	}
	if id == "" {
		id = uuid.NewString()
	}
	c := &Controller{
		id:         id,
		invoker:    invoker,
		subscriber: subscriber,
		logger:     log.With().Str("component", "session").Str("session_id", id).Logger(),
		updates:    make(chan struct{}, 1),
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

func (c *Controller) ID() string { return c.id }

// Start acquires the chunk subscription, once for the controller lifetime.
// A failure here is a one-time diagnostic, not a hard stop: the session
// degrades to request/response without streaming visibility and Submit
// keeps working. Calling Start again is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	if c.subscriber == nil {
		c.mu.Unlock()
		c.logger.Warn().Msg("no subscriber configured; continuing without streaming visibility")
		return errors.New("no subscriber configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	ch, err := c.subscriber.Subscribe(runCtx, events.Topic(c.id))
	if err != nil {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("subscribe failed; continuing without streaming visibility")
		return errors.Wrap(err, "subscribe to session stream")
	}

	c.wg.Add(1)
	go c.consume(ch)
	c.logger.Debug().Msg("subscription started")
	return nil
}

func (c *Controller) consume(ch <-chan *message.Message) {
	defer c.wg.Done()
	for msg := range ch {
		chunk, err := events.ParseChunk(msg.Payload)
		if err != nil {
			c.logger.Trace().Err(err).Str("message_id", msg.UUID).Msg("ignoring malformed chunk")
			msg.Ack()
			continue
		}
		c.HandleChunk(chunk)
		msg.Ack()
	}
	c.logger.Debug().Msg("subscription drained")
}

// HandleChunk folds one chunk event into session state. Chunks arriving
// while Idle are dropped; a lagging or misattributed event source must not
// corrupt the next request's buffer.
func (c *Controller) HandleChunk(chunk events.Chunk) {
	if chunk.HasToolCall() {
		c.onToolCall(chunk.ToolCall)
	}
	if chunk.HasDelta() {
		c.onDelta(chunk.Delta)
	}
}

func (c *Controller) onDelta(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		c.logger.Debug().Int("len", len(text)).Msg("ignoring delta while idle")
		return
	}
	c.buffer.WriteString(text)
	c.notifyLocked()
}

func (c *Controller) onToolCall(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		c.logger.Debug().Msg("ignoring tool call while idle")
		return
	}
	// Keep an owned copy; the payload slice belongs to the transport.
	owned := make([]byte, len(payload))
	copy(owned, payload)
	c.appendLocked(TranscriptEntry{
		Role:            RoleSystem,
		Content:         events.RenderToolCall(owned),
		CreatedAt:       time.Now(),
		ToolCallPayload: owned,
	})
	c.notifyLocked()
}

// Submit starts one request: appends the user entry, opens the buffer,
// marks the session busy, and launches the invoker on its own goroutine.
// It rejects without any state change when the text trims to empty or a
// request is already in flight; rejected submissions are not queued.
func (c *Controller) Submit(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.appendLocked(TranscriptEntry{
		Role:      RoleUser,
		Content:   trimmed,
		CreatedAt: time.Now(),
	})
	c.buffer.Reset()
	c.busy = true
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Debug().Int("len", len(trimmed)).Msg("submitting request")
	go func() {
		err := c.invoker.Invoke(ctx, trimmed)
		c.resolve(err)
	}()
	return nil
}

// resolve handles the terminal signal of the in-flight request. The buffer
// is flushed-or-discarded exactly here, in the same critical section that
// clears busy.
func (c *Controller) resolve(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		c.logger.Debug().Err(err).Msg("ignoring resolution while idle")
		return
	}
	c.busy = false
	if err != nil {
		c.logger.Debug().Err(err).Msg("request failed")
		c.appendLocked(TranscriptEntry{
			Role:      RoleSystem,
			Content:   "Error: " + err.Error(),
			CreatedAt: time.Now(),
		})
		c.buffer.Reset()
		c.notifyLocked()
		return
	}
	if c.buffer.Len() > 0 {
		c.appendLocked(TranscriptEntry{
			Role:      RoleAssistant,
			Content:   c.buffer.String(),
			CreatedAt: time.Now(),
		})
	}
	c.buffer.Reset()
	c.logger.Debug().Msg("request resolved")
	c.notifyLocked()
}

func (c *Controller) appendLocked(e TranscriptEntry) {
	c.transcript = append(c.transcript, e)
}

func (c *Controller) notifyLocked() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Updates coalesces change notifications; receivers re-snapshot on every
// tick. The channel never closes.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot returns a consistent copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]TranscriptEntry, len(c.transcript))
	copy(entries, c.transcript)
	preview := ""
	if c.busy {
		preview = c.buffer.String()
	}
	return Snapshot{
		SessionID:   c.id,
		Entries:     entries,
		Busy:        c.busy,
		LivePreview: preview,
		Thinking:    c.busy && preview == "",
		Streaming:   c.busy && preview != "",
	}
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) IsThinking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy && c.buffer.Len() == 0
}

func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy && c.buffer.Len() > 0
}

// LivePreview is the accumulated delta text of the in-flight response,
// empty while Idle.
func (c *Controller) LivePreview() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		return ""
	}
	return c.buffer.String()
}

// Transcript returns a copy of the append-only transcript.
func (c *Controller) Transcript() []TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]TranscriptEntry, len(c.transcript))
	copy(entries, c.transcript)
	return entries
}

// Close releases the subscription and waits for the consumer to drain.
// Safe on every teardown path, including mid-request, and idempotent. An
// in-flight invoker still resolves afterwards; only the stream is gone.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.logger.Debug().Msg("controller closed")
	return nil
}
