package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HookResponse is the response sent back to the coding assistant.
type HookResponse struct {
	Continue bool `json:"continue"`
}

// ProjectName derives a display name for a project from its working
// directory.
func ProjectName(cwd string) string {
	absPath, err := filepath.Abs(cwd)
	if err != nil {
		absPath = cwd
	}
	return filepath.Base(absPath)
}

// WriteResponse writes a hook response to stdout.
func WriteResponse(hookName string, success bool) {
	response := HookResponse{Continue: success}
	data, _ := json.Marshal(response)
	fmt.Println(string(data))
}

// WriteError writes an error message to stderr.
func WriteError(hookName string, err error) {
	fmt.Fprintf(os.Stderr, "[%s] Error: %v\n", hookName, err)
	WriteResponse(hookName, false)
}

// BaseInput contains common fields shared by all hook inputs.
type BaseInput struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
}

// HookContext provides common context for hook handlers.
type HookContext struct {
	HookName  string
	Port      int
	Project   string
	SessionID string
	CWD       string
	RawInput  []byte
}

// HookHandler is a function that handles hook-specific logic.
// It returns an optional context string to inject into the prompt.
type HookHandler[T any] func(ctx *HookContext, input *T) (additionalContext string, err error)

// RunHook executes a hook with the common boilerplate: internal-call skip,
// stdin reading, JSON unmarshaling, worker startup and project naming.
func RunHook[T any](hookName string, handler HookHandler[T]) {
	// Skip if this is an internal call (from the queue processor)
	if os.Getenv("PILOT_CONSOLE_INTERNAL") == "1" {
		WriteResponse(hookName, true)
		return
	}

	inputData, err := io.ReadAll(os.Stdin)
	if err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	var input T
	if err := json.Unmarshal(inputData, &input); err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	port, err := EnsureWorkerRunning()
	if err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	var base BaseInput
	_ = json.Unmarshal(inputData, &base)

	ctx := &HookContext{
		HookName:  hookName,
		Port:      port,
		Project:   ProjectName(base.CWD),
		SessionID: base.SessionID,
		CWD:       base.CWD,
		RawInput:  inputData,
	}

	additionalContext, err := handler(ctx, &input)
	if err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	if additionalContext != "" {
		response := map[string]interface{}{
			"continue": true,
			"hookSpecificOutput": map[string]interface{}{
				"hookEventName":     hookName,
				"additionalContext": additionalContext,
			},
		}
		_ = json.NewEncoder(os.Stdout).Encode(response)
		os.Exit(0)
	}

	WriteResponse(hookName, true)
}
