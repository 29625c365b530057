package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/cricket/pkg/agent"
	"github.com/go-go-golems/cricket/pkg/config"
	"github.com/go-go-golems/cricket/pkg/events"
	"github.com/go-go-golems/cricket/pkg/journal"
	"github.com/go-go-golems/cricket/pkg/mcptools"
	"github.com/go-go-golems/cricket/pkg/redisstream"
	"github.com/go-go-golems/cricket/pkg/session"
	"github.com/go-go-golems/cricket/pkg/ui"
)

// RunMode defines the execution mode for a chat session.
type RunMode string

const (
	RunModeChat        RunMode = "chat"
	RunModeInteractive RunMode = "interactive"
	RunModeBlocking    RunMode = "blocking"
)

const echoDelay = 30 * time.Millisecond

// SessionBuilder wires the event bus, backend, controller and optional
// observers into a runnable ChatSession.
type SessionBuilder struct {
	err error

	ctx          context.Context
	cfg          config.Settings
	sessionID    string
	mode         RunMode
	prompt       string
	offline      bool
	withMCP      bool
	journalPath  string
	redisMirror  bool
	outputWriter io.Writer
	uiOptions    ui.ModelOptions
}

// NewSessionBuilder creates a builder with defaults: chat mode, MCP
// tools enabled, output to stdout.
func NewSessionBuilder(cfg config.Settings) *SessionBuilder {
	return &SessionBuilder{
		ctx:          context.Background(),
		cfg:          cfg,
		sessionID:    uuid.NewString(),
		mode:         RunModeChat,
		withMCP:      true,
		outputWriter: os.Stdout,
		uiOptions:    ui.ModelOptions{Title: "cricket", Model: cfg.Model, Markdown: true},
	}
}

func (b *SessionBuilder) WithContext(ctx context.Context) *SessionBuilder {
	if b.err != nil {
		return b
	}
	if ctx == nil {
		b.err = errors.New("context cannot be nil")
		return b
	}
	b.ctx = ctx
	return b
}

func (b *SessionBuilder) WithSessionID(id string) *SessionBuilder {
	if b.err != nil {
		return b
	}
	if strings.TrimSpace(id) == "" {
		b.err = errors.New("session id cannot be empty")
		return b
	}
	b.sessionID = id
	return b
}

func (b *SessionBuilder) WithMode(mode RunMode) *SessionBuilder {
	if b.err != nil {
		return b
	}
	switch mode {
	case RunModeChat, RunModeInteractive, RunModeBlocking:
		b.mode = mode
	default:
		b.err = errors.Errorf("invalid run mode: %s", mode)
	}
	return b
}

// WithPrompt sets the initial prompt. Required for blocking and
// interactive modes.
func (b *SessionBuilder) WithPrompt(prompt string) *SessionBuilder {
	if b.err != nil {
		return b
	}
	b.prompt = prompt
	return b
}

// WithOffline swaps the OpenAI backend for the local echo backend.
func (b *SessionBuilder) WithOffline(offline bool) *SessionBuilder {
	if b.err != nil {
		return b
	}
	b.offline = offline
	return b
}

func (b *SessionBuilder) WithMCPTools(enabled bool) *SessionBuilder {
	if b.err != nil {
		return b
	}
	b.withMCP = enabled
	return b
}

// WithJournal enables the sqlite stream journal at the given path.
func (b *SessionBuilder) WithJournal(path string) *SessionBuilder {
	if b.err != nil {
		return b
	}
	b.journalPath = path
	return b
}

// WithRedisMirror mirrors the session stream to Redis Streams at the
// configured address.
func (b *SessionBuilder) WithRedisMirror(enabled bool) *SessionBuilder {
	if b.err != nil {
		return b
	}
	b.redisMirror = enabled
	return b
}

func (b *SessionBuilder) WithOutputWriter(w io.Writer) *SessionBuilder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("output writer cannot be nil")
		return b
	}
	b.outputWriter = w
	return b
}

func (b *SessionBuilder) WithUIOptions(opts ui.ModelOptions) *SessionBuilder {
	if b.err != nil {
		return b
	}
	b.uiOptions = opts
	return b
}

// Build validates the configuration and assembles the session.
func (b *SessionBuilder) Build() (*ChatSession, error) {
	if b.err != nil {
		return nil, b.err
	}
	if (b.mode == RunModeBlocking || b.mode == RunModeInteractive) && strings.TrimSpace(b.prompt) == "" {
		return nil, errors.Errorf("%s mode requires a prompt (use WithPrompt)", b.mode)
	}

	router, err := events.NewEventRouter()
	if err != nil {
		return nil, errors.Wrap(err, "create event router")
	}

	cs := &ChatSession{
		ctx:          b.ctx,
		cfg:          b.cfg,
		sessionID:    b.sessionID,
		mode:         b.mode,
		prompt:       b.prompt,
		outputWriter: b.outputWriter,
		uiOptions:    b.uiOptions,
		router:       router,
	}

	topic := events.Topic(b.sessionID)
	sink := events.NewBusSink(router.Publisher, topic)

	if b.journalPath != "" {
		store, err := journal.NewStore(b.journalPath)
		if err != nil {
			_ = router.Close()
			return nil, errors.Wrap(err, "open stream journal")
		}
		cs.journal = store
		router.AddHandler("journal", topic, journal.Handler(store, b.sessionID))
	}

	invoker, err := b.buildInvoker(sink, cs)
	if err != nil {
		cs.close()
		return nil, err
	}
	if cs.journal != nil {
		invoker = journal.WrapInvoker(cs.journal, b.sessionID, invoker)
	}

	controller, err := session.New(b.sessionID, invoker, router.Subscriber)
	if err != nil {
		cs.close()
		return nil, errors.Wrap(err, "create session controller")
	}
	cs.controller = controller

	if b.redisMirror {
		addr := b.cfg.RedisAddr
		if addr == "" {
			addr = redisstream.DefaultAddr
		}
		pub, err := redisstream.BuildPublisher(addr)
		if err != nil {
			cs.close()
			return nil, errors.Wrap(err, "build redis mirror publisher")
		}
		cs.mirrorPub = pub
		router.AddHandler("redis-mirror", topic, redisstream.Mirror(pub, topic))
	}

	if b.mode == RunModeBlocking || b.mode == RunModeInteractive {
		cs.printerOut = &switchableWriter{w: b.outputWriter}
		router.AddHandler("printer", topic, events.ChunkPrinterFunc("printer", cs.printerOut))
	}

	return cs, nil
}

func (b *SessionBuilder) buildInvoker(sink events.Sink, cs *ChatSession) (session.Invoker, error) {
	if b.offline {
		return agent.NewEchoEngine(sink, echoDelay), nil
	}

	registry := agent.NewRegistry()
	if err := registry.Register(agent.NewCurrentTimeTool()); err != nil {
		return nil, errors.Wrap(err, "register built-in tools")
	}

	if b.withMCP {
		url := b.cfg.MCPServerURL
		if url == "" {
			url = config.DefaultMCPServerURL
		}
		pool := mcptools.NewPool(url)
		cs.mcpPool = pool
		// Best effort: a missing MCP server must not block the chat.
		count, err := mcptools.LoadTools(b.ctx, pool, registry)
		if err != nil {
			log.Warn().Err(err).Str("server", url).Msg("MCP tools unavailable, continuing without them")
		} else {
			log.Debug().Int("count", count).Msg("MCP tools loaded")
		}
	}

	return agent.NewOpenAIEngine(agent.EngineConfig{
		APIKey:       b.cfg.OpenAIAPIKey,
		BaseURL:      b.cfg.OpenAIBaseURL,
		Model:        b.cfg.Model,
		SystemPrompt: b.cfg.SystemPrompt,
		MaxTokens:    b.cfg.MaxTokens,
	}, sink, registry), nil
}

// ChatSession holds the wired components and executes the chat logic
// for its configured mode.
type ChatSession struct {
	ctx          context.Context
	cfg          config.Settings
	sessionID    string
	mode         RunMode
	prompt       string
	outputWriter io.Writer
	uiOptions    ui.ModelOptions

	router     *events.EventRouter
	controller *session.Controller
	journal    *journal.Store
	mirrorPub  interface{ Close() error }
	mcpPool    *mcptools.Pool
	printerOut *switchableWriter
}

// switchableWriter lets the interactive mode silence the stream
// printer before handing the terminal to the chat program.
type switchableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchableWriter) swap(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Controller exposes the session controller, mainly for tests and for
// commands that need the transcript after Run returns.
func (cs *ChatSession) Controller() *session.Controller {
	return cs.controller
}

// SessionID returns the stream identity of this session.
func (cs *ChatSession) SessionID() string {
	return cs.sessionID
}

// Run executes the session in its configured mode and releases every
// resource before returning.
func (cs *ChatSession) Run() error {
	defer cs.close()

	eg, childCtx := errgroup.WithContext(cs.ctx)
	childCtx, cancel := context.WithCancel(childCtx)
	defer cancel()

	eg.Go(func() error {
		err := cs.router.Run(childCtx)
		if errors.Is(err, context.Canceled) && childCtx.Err() == context.Canceled {
			return nil
		}
		return err
	})

	select {
	case <-cs.router.Running():
	case <-childCtx.Done():
		return childCtx.Err()
	}

	// A failed subscription degrades to submit-only operation; the
	// transcript still records requests and resolutions.
	if err := cs.controller.Start(childCtx); err != nil {
		log.Warn().Err(err).Msg("streaming updates unavailable for this session")
	}

	var err error
	switch cs.mode {
	case RunModeChat:
		err = cs.runChat(childCtx)
	case RunModeBlocking:
		err = cs.runBlocking(childCtx)
	case RunModeInteractive:
		err = cs.runInteractive(childCtx)
	default:
		err = errors.Errorf("unknown run mode: %v", cs.mode)
	}

	cancel()
	if egErr := eg.Wait(); egErr != nil && err == nil {
		err = egErr
	}
	if errors.Is(err, context.Canceled) && cs.ctx.Err() == context.Canceled {
		return nil
	}
	return err
}

func (cs *ChatSession) runChat(ctx context.Context) error {
	if strings.TrimSpace(cs.prompt) != "" {
		if err := cs.controller.Submit(ctx, cs.prompt); err != nil {
			return errors.Wrap(err, "submit initial prompt")
		}
	}

	model := ui.NewModel(cs.controller, cs.uiOptions)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(err, "run chat program")
}

func (cs *ChatSession) runBlocking(ctx context.Context) error {
	if err := cs.controller.Submit(ctx, cs.prompt); err != nil {
		return errors.Wrap(err, "submit prompt")
	}

	for cs.controller.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cs.controller.Updates():
		}
	}
	_, _ = fmt.Fprintln(cs.outputWriter)

	entries := cs.controller.Transcript()
	if len(entries) == 0 {
		return errors.New("request left no transcript entries")
	}
	last := entries[len(entries)-1]
	if last.Role == session.RoleSystem && strings.HasPrefix(last.Content, "Error: ") {
		return errors.New(strings.TrimPrefix(last.Content, "Error: "))
	}
	return nil
}

func (cs *ChatSession) runInteractive(ctx context.Context) error {
	if err := cs.runBlocking(ctx); err != nil {
		return err
	}

	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.Debug().Msg("stderr is not a tty, skipping chat continuation prompt")
		return nil
	}
	continueInChat, err := askForChatContinuation(os.Stderr)
	if err != nil {
		return errors.Wrap(err, "ask for chat continuation")
	}
	if !continueInChat {
		return nil
	}

	// The transcript already holds the first exchange; the chat view
	// picks it up from the controller snapshot.
	cs.prompt = ""
	if cs.printerOut != nil {
		cs.printerOut.swap(io.Discard)
	}
	return cs.runChat(ctx)
}

func (cs *ChatSession) close() {
	if cs.controller != nil {
		_ = cs.controller.Close()
	}
	if cs.router != nil {
		_ = cs.router.Close()
	}
	if cs.journal != nil {
		_ = cs.journal.Close()
	}
	if cs.mirrorPub != nil {
		_ = cs.mirrorPub.Close()
	}
	if cs.mcpPool != nil {
		_ = cs.mcpPool.Close()
	}
}

func askForChatContinuation(tty io.ReadWriter) (bool, error) {
	asker := &input.UI{
		Writer: tty,
		Reader: tty,
	}

	_, _ = fmt.Fprint(tty, "\n")
	answer, err := asker.Ask("Do you want to continue in chat mode? [Y/n]", &input.Options{
		Default:  "y",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.New("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "get user input")
	}
	_, _ = fmt.Fprint(tty, "\n")

	return answer == "y" || answer == "Y" || answer == "", nil
}
