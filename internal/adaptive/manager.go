package adaptive

import (
	"context"
	"regexp"
	"strings"

	"ragquery/internal/intent"
	"ragquery/internal/observability"
)

// entityRe is a deliberately simple named-entity heuristic: capitalized
// words and runs of them ("Postgres", "San Francisco"); quoted terms are
// not matched. Good
// enough to notice a new proper noun entering the conversation; not an NER
// model.
var entityRe = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]+(?:\s[A-Z][a-zA-Z0-9]+)*)\b`)

// RebuildFunc re-invokes Component C's build_context (or equivalent) and
// returns the replacement context string. Kept as a closure rather than a
// direct ctxengine dependency so this package stays decoupled from the
// Context Engine's request shape.
type RebuildFunc func(ctx context.Context, s *State) (string, error)

// Manager is the Adaptive Context Manager attached to one query.
type Manager struct {
	Thresholds Thresholds
	Rebuild    RebuildFunc

	state         *State
	recentlyAdded []string
}

// NewManager attaches a manager to one query's initial context.
func NewManager(kbID, sessionID, initialContext string, in *intent.Intent, thresholds Thresholds, rebuild RebuildFunc) *Manager {
	return &Manager{
		Thresholds: thresholds,
		Rebuild:    rebuild,
		state:      newState(kbID, sessionID, initialContext, in),
	}
}

// ContextString returns the current (possibly rebuilt) context string.
func (m *Manager) ContextString() string {
	return m.state.ContextString
}

// RecordToolCall observes one (name, input, output) tool dispatch,
// updating the running entity set, the tool-call counter, and the
// cumulative observation token estimate.
func (m *Manager) RecordToolCall(tc ToolCall) {
	m.state.ToolCallsSinceRebuild++
	m.state.ObservationTokens += estimateTokens(tc.Output, m.Thresholds.charsPerToken())
	for _, e := range extractEntities(tc.Output) {
		if _, seen := m.state.Entities[e]; seen {
			continue
		}
		m.state.Entities[e] = struct{}{}
		m.recentlyAdded = append(m.recentlyAdded, e)
	}
}

// ShouldUpdate reports whether the context is stale enough to rebuild and
// why, per spec.md §4.G's four triggers. isFollowUp is supplied by the
// caller since it depends on the user's latest message, not on anything
// observable from tool calls.
func (m *Manager) ShouldUpdate(isFollowUp bool) (bool, string) {
	if m.state.ToolCallsSinceRebuild >= m.Thresholds.toolCalls() {
		return true, "tool_call_count"
	}
	if m.state.ObservationTokens > m.Thresholds.observationTokens() {
		return true, "observation_tokens"
	}
	if m.hasNewEntitySinceSeen() {
		return true, "new_entity"
	}
	if isFollowUp {
		return true, "follow_up_message"
	}
	return false, ""
}

// hasNewEntitySinceSeen reports whether any entity observed since the last
// update_context wasn't already part of the running entity set.
func (m *Manager) hasNewEntitySinceSeen() bool {
	return len(m.recentlyAdded) > 0
}

// UpdateContext re-invokes Rebuild, replaces the stored context string, and
// resets the rebuild counters. Per the contract, the replacement string is
// what subsequent tool observations should be built against downstream; the
// caller is responsible for writing it into the shared tool context (e.g.
// canonical.ToolContext or the ReAct driver's enriched message).
func (m *Manager) UpdateContext(ctx context.Context) (string, error) {
	if m.Rebuild == nil {
		return m.state.ContextString, nil
	}
	next, err := m.Rebuild(ctx, m.state)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("adaptive_context_rebuild_failed")
		return m.state.ContextString, err
	}
	m.state.ContextString = next
	m.state.ToolCallsSinceRebuild = 0
	m.state.ObservationTokens = 0
	m.recentlyAdded = nil
	return next, nil
}

func extractEntities(s string) []string {
	matches := entityRe.FindAllString(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if len(m) < 3 {
			continue
		}
		out = append(out, m)
	}
	return out
}

func estimateTokens(s string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = 3
	}
	n := len([]rune(s))
	return (n + charsPerToken - 1) / charsPerToken
}
