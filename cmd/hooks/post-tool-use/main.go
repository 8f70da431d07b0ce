// Package main provides the post-tool-use hook entry point.
package main

import (
	"fmt"
	"os"

	"github.com/pilotlabs/console/pkg/hooks"
)

// Input is the hook input from the coding assistant.
type Input struct {
	hooks.BaseInput
	ToolName     string      `json:"tool_name"`
	ToolInput    interface{} `json:"tool_input"`
	ToolResponse interface{} `json:"tool_response"`
	ToolUseID    string      `json:"tool_use_id"`
}

// skipTools lists tools that never produce useful observations. Skipping
// the HTTP call entirely keeps heavy tool usage cheap.
var skipTools = map[string]bool{
	"Task":            true,
	"TaskOutput":      true,
	"Glob":            true,
	"LS":              true,
	"KillShell":       true,
	"AskUserQuestion": true,
	"EnterPlanMode":   true,
	"ExitPlanMode":    true,
	"Skill":           true,
	"SlashCommand":    true,
	"Read":            true,
	"Grep":            true,
	"WebSearch":       true,
}

func main() {
	hooks.RunHook("PostToolUse", handlePostToolUse)
}

func handlePostToolUse(ctx *hooks.HookContext, input *Input) (string, error) {
	if skipTools[input.ToolName] {
		return "", nil
	}

	fmt.Fprintf(os.Stderr, "[post-tool-use] %s\n", input.ToolName)

	_, err := hooks.POST(ctx.Port, "/api/sessions/observations", map[string]interface{}{
		"contentSessionId": ctx.SessionID,
		"project":          ctx.Project,
		"tool_name":        input.ToolName,
		"tool_input":       input.ToolInput,
		"tool_response":    input.ToolResponse,
		"cwd":              ctx.CWD,
	})

	return "", err
}
