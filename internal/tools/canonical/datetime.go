package canonical

import (
	"context"
	"encoding/json"
	"time"
)

// getCurrentDatetimeTool returns the current time localized to the
// configured timezone, not the server's local zone, so installations in a
// different region get a consistent answer.
type getCurrentDatetimeTool struct{ tc *ToolContext }

func NewGetCurrentDatetimeTool(tc *ToolContext) *getCurrentDatetimeTool {
	return &getCurrentDatetimeTool{tc: tc}
}

func (t *getCurrentDatetimeTool) Name() string { return "get_current_datetime" }

func (t *getCurrentDatetimeTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Return the current date and time.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *getCurrentDatetimeTool) Call(context.Context, json.RawMessage) (any, error) {
	tz := t.tc.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return time.Now().In(tz).Format("Monday, January 2, 2006 15:04:05 MST"), nil
}
