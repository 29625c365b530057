package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// TimeFormat is the layout used by the current-time tool.
const TimeFormat = "2006-01-02 15:04:05"

// NewCurrentTimeTool returns the built-in clock tool. It takes no
// arguments and reports the local wall-clock time.
func NewCurrentTimeTool() Tool {
	return Tool{
		Name:        "get_current_time",
		Description: "Get the current local time",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Run: func(_ context.Context, _ json.RawMessage) (string, error) {
			out, err := json.Marshal(map[string]string{
				"current_time": time.Now().Format(TimeFormat),
			})
			if err != nil {
				return "", errors.Wrap(err, "marshal current time")
			}
			return string(out), nil
		},
	}
}
