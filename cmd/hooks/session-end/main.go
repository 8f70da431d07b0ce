// Package main provides the session-end hook entry point.
//
// Sends a "Session Ended" notification and, when this was the last active
// session with no queued work left, stops the worker so it doesn't idle
// between coding sessions.
package main

import (
	"fmt"
	"os"

	"github.com/pilotlabs/console/pkg/hooks"
)

// Input is the hook input from the coding assistant.
type Input struct {
	hooks.BaseInput
	Reason string `json:"reason"`
}

func main() {
	hooks.RunHook("SessionEnd", handleSessionEnd)
}

func handleSessionEnd(ctx *hooks.HookContext, input *Input) (string, error) {
	// Delete the session: cascades to its queued messages
	if result, err := hooks.GET(ctx.Port, fmt.Sprintf("/api/sessions?contentSessionId=%s", ctx.SessionID)); err == nil && result != nil {
		if id, ok := result["id"].(float64); ok {
			if err := hooks.DELETE(ctx.Port, fmt.Sprintf("/api/sessions/%d", int64(id))); err != nil {
				fmt.Fprintf(os.Stderr, "[session-end] Warning: session delete failed: %v\n", err)
			}
		}
	}

	// Fire-and-forget dashboard notification
	_, _ = hooks.POST(ctx.Port, "/api/notifications", map[string]interface{}{
		"type":    "attention_needed",
		"title":   "Session Ended",
		"message": "Coding session ended",
	})

	// Stop the worker only when nothing else is using it
	stats, err := hooks.GET(ctx.Port, "/api/stats")
	if err != nil {
		return "", nil
	}
	active, _ := stats["activeSessions"].(float64)
	processing, _ := stats["isProcessing"].(bool)
	if active == 0 && !processing {
		fmt.Fprintf(os.Stderr, "[session-end] No active sessions, stopping worker\n")
		if err := hooks.KillProcessOnPort(ctx.Port); err != nil {
			fmt.Fprintf(os.Stderr, "[session-end] Warning: failed to stop worker: %v\n", err)
		}
	}

	return "", nil
}
