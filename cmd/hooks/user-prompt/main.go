// Package main provides the user-prompt hook entry point.
package main

import (
	"fmt"
	"os"

	"github.com/pilotlabs/console/pkg/hooks"
)

// Input is the hook input from the coding assistant.
type Input struct {
	hooks.BaseInput
	Prompt string `json:"prompt"`
}

func main() {
	hooks.RunHook("UserPromptSubmit", handleUserPrompt)
}

func handleUserPrompt(ctx *hooks.HookContext, input *Input) (string, error) {
	result, err := hooks.POST(ctx.Port, "/api/sessions/init", map[string]interface{}{
		"contentSessionId": ctx.SessionID,
		"project":          ctx.Project,
		"prompt":           input.Prompt,
	})
	if err != nil {
		return "", err
	}

	sessionID, ok := result["sessionDbId"].(float64)
	if !ok {
		return "", fmt.Errorf("unexpected session init response")
	}
	promptNumber := 0
	if n, ok := result["promptNumber"].(float64); ok {
		promptNumber = int(n)
	}

	fmt.Fprintf(os.Stderr, "[user-prompt] Session %d, prompt #%d\n", int64(sessionID), promptNumber)

	// Register the session with the worker's in-memory manager
	_, err = hooks.POST(ctx.Port, fmt.Sprintf("/sessions/%d/init", int64(sessionID)), map[string]interface{}{
		"userPrompt":   input.Prompt,
		"promptNumber": promptNumber,
	})
	return "", err
}
