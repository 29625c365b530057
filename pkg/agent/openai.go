package agent

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/cricket/pkg/events"
)

// EngineConfig carries the resolved settings for one OpenAI engine.
type EngineConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	// MaxToolRounds bounds the completion/tool loop. Zero means 8.
	MaxToolRounds int
}

const defaultMaxToolRounds = 8

// OpenAIEngine streams chat completions and drives the tool loop.
// Text deltas and tool calls go to the sink as they arrive; the final
// error return resolves the request.
type OpenAIEngine struct {
	cfg      EngineConfig
	client   *openai.Client
	sink     events.Sink
	registry *Registry
	logger   zerolog.Logger
}

func NewOpenAIEngine(cfg EngineConfig, sink events.Sink, registry *Registry) *OpenAIEngine {
	if sink == nil {
		sink = events.NullSink{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEngine{
		cfg:      cfg,
		client:   openai.NewClientWithConfig(clientCfg),
		sink:     sink,
		registry: registry,
		logger:   log.With().Str("component", "openai-engine").Logger(),
	}
}

// Invoke runs one request to completion. Every chunk is published
// before Invoke returns, so callers may treat the return as the
// resolution of the whole stream.
func (e *OpenAIEngine) Invoke(ctx context.Context, text string) error {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		// A missing key resolves clean: the notice streams as the answer
		// and lands in the transcript as the assistant entry, not as an
		// error line.
		if err := e.sink.PublishDelta("OPENAI_API_KEY environment variable not set"); err != nil {
			e.logger.Warn().Err(err).Msg("could not publish missing-key notice")
		}
		return nil
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: e.cfg.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}

	for round := 0; round < e.cfg.MaxToolRounds; round++ {
		content, calls, err := e.streamCompletion(ctx, messages)
		if err != nil {
			if perr := e.sink.PublishDelta("Error: " + err.Error()); perr != nil {
				e.logger.Warn().Err(perr).Msg("could not publish stream error")
			}
			return err
		}
		if len(calls) == 0 {
			return nil
		}

		e.logger.Debug().Int("round", round).Int("tool_calls", len(calls)).Msg("executing tool calls")
		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    e.runTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	err := errors.Errorf("tool loop did not settle after %d rounds", e.cfg.MaxToolRounds)
	if perr := e.sink.PublishDelta("Error: " + err.Error()); perr != nil {
		e.logger.Warn().Err(perr).Msg("could not publish tool loop error")
	}
	return err
}

// streamCompletion runs a single streaming completion, publishing text
// deltas as they arrive and accumulating any tool call fragments.
func (e *OpenAIEngine) streamCompletion(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
) (string, []openai.ToolCall, error) {
	req := openai.ChatCompletionRequest{
		Model:     e.cfg.Model,
		Messages:  messages,
		MaxTokens: e.cfg.MaxTokens,
	}
	if tools := e.registry.OpenAITools(); len(tools) > 0 {
		req.Tools = tools
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", nil, errors.Wrap(err, "create chat completion stream")
	}
	defer func() {
		_ = stream.Close()
	}()

	var content strings.Builder
	acc := newToolCallAccumulator()
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, errors.Wrap(err, "receive stream chunk")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if err := e.sink.PublishDelta(delta.Content); err != nil {
				return "", nil, errors.Wrap(err, "publish delta")
			}
		}
		for _, tc := range delta.ToolCalls {
			acc.add(tc)
		}
	}
	return content.String(), acc.toolCalls(), nil
}

// runTool announces the call on the sink, executes it, and renders the
// outcome as the tool message content. Execution failures are reported
// to the model rather than aborting the request.
func (e *OpenAIEngine) runTool(ctx context.Context, call openai.ToolCall) string {
	name := call.Function.Name
	args := json.RawMessage(call.Function.Arguments)
	if err := e.sink.PublishToolCall(events.ToolCall{ID: call.ID, Name: name, Input: args}); err != nil {
		e.logger.Warn().Err(err).Str("tool", name).Msg("could not publish tool call")
	}

	tool, ok := e.registry.Get(name)
	if !ok {
		e.logger.Warn().Str("tool", name).Msg("model requested unknown tool")
		return "Error: unknown tool " + name
	}
	out, err := tool.Run(ctx, args)
	if err != nil {
		e.logger.Warn().Err(err).Str("tool", name).Msg("tool execution failed")
		return "Error: " + err.Error()
	}
	return out
}

// toolCallAccumulator reassembles tool calls from stream fragments.
// Fragments carry an index and partial function arguments; later
// fragments for the same index extend the argument string.
type toolCallAccumulator struct {
	order []int
	calls map[int]*openai.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: map[int]*openai.ToolCall{}}
}

func (a *toolCallAccumulator) add(delta openai.ToolCall) {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	call, ok := a.calls[idx]
	if !ok {
		call = &openai.ToolCall{Index: delta.Index, Type: openai.ToolTypeFunction}
		a.calls[idx] = call
		a.order = append(a.order, idx)
	}
	if delta.ID != "" {
		call.ID = delta.ID
	}
	if delta.Type != "" {
		call.Type = delta.Type
	}
	if delta.Function.Name != "" {
		call.Function.Name = delta.Function.Name
	}
	call.Function.Arguments += delta.Function.Arguments
}

func (a *toolCallAccumulator) toolCalls() []openai.ToolCall {
	out := make([]openai.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.calls[idx])
	}
	return out
}
