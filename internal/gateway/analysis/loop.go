// Package analysis drives the bounded multi-turn tool-use loop and the
// triage-then-escalate tier decision on top of it.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/signalnoise/factgate/internal/gateway/providers"
)

var (
	// ErrTurnTimeout means a single turn exceeded its wall-clock deadline;
	// the whole loop is aborted, not just the turn.
	ErrTurnTimeout = errors.New("analysis turn timed out")
	// ErrCancelled means the caller's cancellation signal fired.
	ErrCancelled = errors.New("analysis cancelled")
)

const turnMaxTokens = 2048

// ModelCaller issues one Messages API call.
type ModelCaller interface {
	Messages(ctx context.Context, req *providers.MessagesRequest) (*providers.MessagesResponse, error)
}

// Runner drives one logical conversation to a final textual answer.
type Runner struct {
	client      ModelCaller
	maxTurns    int
	turnTimeout time.Duration
}

func NewRunner(client ModelCaller, maxTurns int, turnTimeout time.Duration) *Runner {
	return &Runner{
		client:      client,
		maxTurns:    maxTurns,
		turnTimeout: turnTimeout,
	}
}

// LoopResult is the outcome of a completed loop. Text may be empty when
// the turn cap was reached without a non-tool-use response, which signals
// failure to the caller.
type LoopResult struct {
	Text  string
	Turns int
}

// Run executes the agentic loop: each turn sends the conversation so far
// with the web search capability declared. Tool-use turns append the
// model's blocks plus empty tool_result placeholders — the search runs
// server-side upstream, so this gateway never fetches results itself — and
// a turn without tool use ends the loop with its text as the answer.
func (r *Runner) Run(ctx context.Context, system string, initial providers.Message, model string, searchBudget int) (LoopResult, error) {
	messages := []providers.Message{initial}
	tools := []providers.Tool{providers.WebSearchTool(searchBudget)}

	var partial string
	turns := 0
	for turn := 0; turn < r.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return LoopResult{Turns: turns}, ErrCancelled
		}
		turns++

		turnCtx, cancel := context.WithTimeout(ctx, r.turnTimeout)
		resp, err := r.client.Messages(turnCtx, &providers.MessagesRequest{
			Model:     model,
			MaxTokens: turnMaxTokens,
			System:    system,
			Tools:     tools,
			Messages:  messages,
		})
		cancel()
		if err != nil {
			switch {
			case ctx.Err() == context.Canceled:
				return LoopResult{Turns: turns}, ErrCancelled
			case errors.Is(err, context.DeadlineExceeded):
				return LoopResult{Turns: turns}, ErrTurnTimeout
			default:
				return LoopResult{Turns: turns}, err
			}
		}

		toolUses := resp.ToolUses()
		if resp.StopReason == "tool_use" && len(toolUses) > 0 {
			if text := resp.Text(); text != "" {
				partial = text
			}
			messages = append(messages, providers.BlocksMessage("assistant", resp.Content))
			placeholders := make([]providers.ContentBlock, len(toolUses))
			for i, use := range toolUses {
				placeholders[i] = providers.ContentBlock{
					Type:      "tool_result",
					ToolUseID: use.ID,
					Content:   json.RawMessage("[]"),
				}
			}
			messages = append(messages, providers.BlocksMessage("user", placeholders))
			continue
		}

		return LoopResult{Text: resp.Text(), Turns: turns}, nil
	}

	return LoopResult{Text: partial, Turns: turns}, nil
}
