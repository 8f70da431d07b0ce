// Package hooks provides shared utilities for the pilot console hooks.
package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	// DefaultWorkerPort is the default worker port.
	DefaultWorkerPort = 41777

	// HealthCheckTimeout is the timeout for health checks.
	HealthCheckTimeout = 1 * time.Second

	// StartupTimeout is the timeout for worker startup.
	StartupTimeout = 30 * time.Second
)

// GetWorkerPort returns the worker port from environment or default.
func GetWorkerPort() int {
	if port := os.Getenv("PILOT_CONSOLE_WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			return p
		}
	}
	return DefaultWorkerPort
}

// IsWorkerRunning checks if the worker is running and healthy.
func IsWorkerRunning(port int) bool {
	client := &http.Client{Timeout: HealthCheckTimeout}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureWorkerRunning ensures the worker is running, starting it if needed.
// A healthy worker with a compatible version is reused; a stale or
// unresponsive one is killed and replaced.
func EnsureWorkerRunning() (int, error) {
	port := GetWorkerPort()

	if IsWorkerRunning(port) {
		if runningVersion := GetWorkerVersion(port); runningVersion != "" {
			if runningVersion == Version || versionsCompatible(runningVersion, Version) {
				return port, nil
			}
			fmt.Fprintf(os.Stderr, "[pilot-console] Worker version mismatch (running: %s, expected: %s), restarting...\n", runningVersion, Version)
			if err := KillProcessOnPort(port); err != nil {
				fmt.Fprintf(os.Stderr, "[pilot-console] Warning: failed to kill old worker: %v\n", err)
			}
			time.Sleep(500 * time.Millisecond)
		} else {
			// Couldn't get version, assume it's fine
			return port, nil
		}
	}

	// Port occupied by something that fails health checks
	if IsPortInUse(port) {
		if err := KillProcessOnPort(port); err != nil {
			fmt.Fprintf(os.Stderr, "[pilot-console] Warning: failed to kill unhealthy process on port %d: %v\n", port, err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	workerPath := findWorkerBinary()
	if workerPath == "" {
		return 0, fmt.Errorf("worker binary not found")
	}

	cmd := exec.Command(workerPath) // #nosec G204 -- workerPath is from internal findWorkerBinary
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start worker: %w", err)
	}

	// Wait for the worker with exponential backoff
	deadline := time.Now().Add(StartupTimeout)
	backoff := 50 * time.Millisecond
	maxBackoff := 500 * time.Millisecond

	for time.Now().Before(deadline) {
		if IsWorkerRunning(port) {
			return port, nil
		}
		time.Sleep(backoff)
		backoff = backoff * 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return 0, fmt.Errorf("worker failed to start within timeout")
}

// GetWorkerVersion gets the version of the running worker.
func GetWorkerVersion(port int) string {
	client := &http.Client{Timeout: HealthCheckTimeout}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/version", port))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}

	return result["version"]
}

// IsPortInUse checks if the port is in use, regardless of health.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// KillProcessOnPort finds and kills the process using the given port.
func KillProcessOnPort(port int) error {
	// lsof works on both macOS and Linux
	cmd := exec.Command("lsof", "-t", "-i", fmt.Sprintf(":%d", port)) // #nosec G204 -- port is from internal config
	output, err := cmd.Output()
	if err != nil {
		// lsof exits 1 when no process is found
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("failed to find process on port: %w", err)
	}

	pidStr := strings.TrimSpace(string(output))
	if pidStr == "" {
		return nil
	}

	for _, pid := range strings.Split(pidStr, "\n") {
		pid = strings.TrimSpace(pid)
		if pid == "" {
			continue
		}
		killCmd := exec.Command("kill", "-9", pid) // #nosec G204 -- pid is from lsof output
		if err := killCmd.Run(); err != nil {
			return fmt.Errorf("failed to kill process %s: %w", pid, err)
		}
	}

	return nil
}

// findWorkerBinary finds the worker binary path.
func findWorkerBinary() string {
	if root := os.Getenv("PILOT_CONSOLE_ROOT"); root != "" {
		workerPath := filepath.Join(root, "console-worker")
		if _, err := os.Stat(workerPath); err == nil {
			return workerPath
		}
	}

	home := os.Getenv("HOME")
	locations := []string{
		"./console-worker",
		"./bin/console-worker",
		filepath.Join(home, ".pilot-console", "bin", "console-worker"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	if path, err := exec.LookPath("pilot-console-worker"); err == nil {
		return path
	}

	return ""
}

// POST sends a POST request to the worker.
func POST(port int, path string, body interface{}) (map[string]interface{}, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(
		fmt.Sprintf("http://127.0.0.1:%d%s", port, path),
		"application/json",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Not all endpoints return JSON
		return nil, nil
	}

	return result, nil
}

// GET sends a GET request to the worker.
func GET(port int, path string) (map[string]interface{}, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, path))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result, nil
}

// DELETE sends a DELETE request to the worker.
func DELETE(port int, path string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("http://127.0.0.1:%d%s", port, path), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	return nil
}

// versionsCompatible checks if two versions share a base version, ignoring
// -dirty, -dev and commit suffixes. This avoids restarting the worker on
// every rebuild during development.
func versionsCompatible(v1, v2 string) bool {
	if v1 == "dev" || v2 == "dev" {
		return true
	}
	return extractBaseVersion(v1) == extractBaseVersion(v2)
}

// extractBaseVersion extracts the semver base from a version string.
// e.g., "v0.3.5-2-gca711a8-dirty" -> "0.3.5"
func extractBaseVersion(version string) string {
	v := strings.TrimPrefix(version, "v")
	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx]
	}
	return v
}
