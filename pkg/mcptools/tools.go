package mcptools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/agent"
)

// LoadTools lists the server's tools and registers each one as an
// engine tool backed by the pool. It returns how many were registered;
// tools with an unusable schema are skipped, not fatal.
func LoadTools(ctx context.Context, pool *Pool, registry *agent.Registry) (int, error) {
	logger := log.With().Str("component", "mcp-tools").Logger()

	session, err := pool.Session(ctx)
	if err != nil {
		return 0, err
	}
	listing, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return 0, errors.Wrap(err, "list MCP tools")
	}

	count := 0
	for _, tool := range listing.Tools {
		params, err := PatchSchema(tool.InputSchema)
		if err != nil {
			logger.Warn().Err(err).Str("tool", tool.Name).Msg("skipping tool with unusable schema")
			continue
		}
		err = registry.Register(agent.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
			Run:         callToolFunc(pool, tool.Name),
		})
		if err != nil {
			logger.Warn().Err(err).Str("tool", tool.Name).Msg("skipping tool")
			continue
		}
		count++
	}
	logger.Info().Int("count", count).Msg("registered MCP tools")
	return count, nil
}

func callToolFunc(pool *Pool, name string) agent.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (string, error) {
		session, err := pool.Session(ctx)
		if err != nil {
			return "", err
		}

		var arguments map[string]any
		if len(args) > 0 {
			if err := json.Unmarshal(args, &arguments); err != nil {
				return "", errors.Wrapf(err, "decode arguments for %s", name)
			}
		}

		result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
		if err != nil {
			return "", errors.Wrapf(err, "call MCP tool %s", name)
		}
		text := FlattenContent(result.Content)
		if result.IsError {
			if text == "" {
				text = "tool call failed"
			}
			return "", errors.New(text)
		}
		return text, nil
	}
}

// PatchSchema converts a tool input schema into the parameter map the
// chat completion API expects. When the schema declares properties,
// every top-level property is marked required; several servers leave
// the required list empty and the model then omits arguments.
func PatchSchema(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		}, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tool schema")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode tool schema")
	}

	props, ok := out["properties"].(map[string]any)
	if !ok {
		return out, nil
	}
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	sort.Strings(required)
	out["required"] = required
	return out, nil
}

// FlattenContent joins the text parts of a tool result. Non-text
// content is ignored.
func FlattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
