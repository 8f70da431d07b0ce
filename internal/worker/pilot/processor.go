// Package pilot shells queued work out to the assistant CLI.
package pilot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pilotlabs/console/pkg/models"
)

// MaxConcurrentCLICalls bounds parallel CLI invocations.
const MaxConcurrentCLICalls = 2

// MaxPromptSize is the largest prompt forwarded to the CLI.
const MaxPromptSize = 128 * 1024

// CLITimeout bounds a single CLI invocation.
const CLITimeout = 60 * time.Second

// Processor runs pending messages through the assistant CLI. The CLI is an
// opaque external command: JSON on stdout, exit code 0 means success.
type Processor struct {
	pilotPath      string
	sem            chan struct{}
	circuitBreaker *CircuitBreaker
}

// CLIResult is the minimal shape the CLI prints on success.
type CLIResult struct {
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// NewProcessor locates the assistant CLI and builds a processor around it.
// Returns an error when the CLI cannot be found; callers may then run
// without a processor and leave queue rows pending.
func NewProcessor(pilotPath string) (*Processor, error) {
	if pilotPath == "" {
		path, err := exec.LookPath("pilot")
		if err != nil {
			return nil, fmt.Errorf("pilot CLI not found in PATH and no path configured")
		}
		pilotPath = path
	}
	if _, err := os.Stat(pilotPath); err != nil {
		return nil, fmt.Errorf("pilot CLI not found at %s: %w", pilotPath, err)
	}

	return &Processor{
		pilotPath:      pilotPath,
		sem:            make(chan struct{}, MaxConcurrentCLICalls),
		circuitBreaker: NewCircuitBreaker(5, 60), // Open after 5 failures, reset after 60s
	}, nil
}

// IsAvailable reports whether the processor will currently accept work.
func (p *Processor) IsAvailable() bool {
	return p.circuitBreaker.Allow()
}

// CircuitBreakerMetrics exposes breaker state for the stats route.
func (p *Processor) CircuitBreakerMetrics() CircuitBreakerMetrics {
	return p.circuitBreaker.Metrics()
}

// Process routes a claimed message to the CLI by its type.
func (p *Processor) Process(ctx context.Context, msg *models.PendingMessage) error {
	if !p.circuitBreaker.Allow() {
		return fmt.Errorf("circuit breaker open")
	}

	var prompt string
	switch msg.MessageType {
	case models.MessageTypeObservation:
		prompt = buildObservationPrompt(msg)
	case models.MessageTypeSummarize:
		prompt = buildSummarizePrompt(msg)
	default:
		return fmt.Errorf("unknown message type %q", msg.MessageType)
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	out, err := p.callCLI(ctx, prompt, msg.CWD.String)
	if err != nil {
		p.circuitBreaker.RecordFailure()
		return err
	}
	p.circuitBreaker.RecordSuccess()

	// Output is advisory: parse what we can, never fail a processed message
	// on malformed stdout.
	var result CLIResult
	if jerr := json.Unmarshal(out, &result); jerr == nil && result.Status != "" {
		log.Debug().
			Int64("messageId", msg.ID).
			Str("status", result.Status).
			Msg("CLI result")
	}

	return nil
}

func buildObservationPrompt(msg *models.PendingMessage) string {
	var b strings.Builder
	b.WriteString("Record the following tool execution for session context.\n")
	if msg.ToolName.Valid {
		fmt.Fprintf(&b, "Tool: %s\n", msg.ToolName.String)
	}
	if len(msg.ToolInput) > 0 {
		fmt.Fprintf(&b, "Input: %s\n", msg.ToolInput)
	}
	if len(msg.ToolResponse) > 0 {
		fmt.Fprintf(&b, "Output: %s\n", msg.ToolResponse)
	}
	if msg.CWD.Valid {
		fmt.Fprintf(&b, "Working directory: %s\n", msg.CWD.String)
	}
	return b.String()
}

func buildSummarizePrompt(msg *models.PendingMessage) string {
	var b strings.Builder
	b.WriteString("Summarize the session exchange below.\n")
	if msg.LastUserMessage.Valid {
		fmt.Fprintf(&b, "User: %s\n", msg.LastUserMessage.String)
	}
	if msg.LastAssistantMessage.Valid {
		fmt.Fprintf(&b, "Assistant: %s\n", msg.LastAssistantMessage.String)
	}
	return b.String()
}

// callCLI invokes the assistant CLI with the prompt and returns stdout.
func (p *Processor) callCLI(ctx context.Context, prompt, cwd string) ([]byte, error) {
	if len(prompt) > MaxPromptSize {
		return nil, fmt.Errorf("prompt exceeds maximum size of %d bytes", MaxPromptSize)
	}

	ctx, cancel := context.WithTimeout(ctx, CLITimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pilotPath,
		"--print",
		"--output-format", "json",
		"-p", prompt) // #nosec G204 -- pilotPath is from config, prompt is internal

	// Run from /tmp unless the message carries a cwd, so the CLI does not
	// re-trigger the hooks that produced this message.
	cmd.Dir = "/tmp"
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = append(os.Environ(), "PILOT_CONSOLE_INTERNAL=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("stderr", stderr.String()).
			Msg("Pilot CLI execution failed")
		return nil, fmt.Errorf("pilot CLI failed: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}
