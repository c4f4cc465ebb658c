// internal/clab/executor.go
package clab

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const Executable = "clab"              // Assumes clab is in PATH (locally and on lab hosts)
const defaultTimeout = 5 * time.Minute // Timeout for local clab commands

// BuildArgs returns the full argv for a clab subcommand, inserting
// --runtime after the subcommand when a non-default runtime is configured.
func BuildArgs(runtime string, args ...string) []string {
	finalArgs := []string{Executable}
	if len(args) == 0 {
		return finalArgs
	}
	finalArgs = append(finalArgs, args[0]) // the subcommand (deploy, inspect, etc.)

	if runtime != "" && runtime != "docker" {
		log.Debug("Using non-default container runtime", "runtime", runtime)
		finalArgs = append(finalArgs, "--runtime", runtime)
	}

	return append(finalArgs, args[1:]...)
}

// InspectAllArgs lists every lab on the host as JSON.
func InspectAllArgs() []string {
	return []string{"inspect", "--all", "--format", "json"}
}

// DeployArgs deploys (or with reconfigure, re-applies) the topology at topoPath.
func DeployArgs(topoPath string, reconfigure bool) []string {
	args := []string{"deploy", "--topo", topoPath}
	if reconfigure {
		args = append(args, "--reconfigure")
	}
	return args
}

// DestroyArgs destroys the lab described by topoPath.
func DestroyArgs(topoPath string, cleanup bool) []string {
	args := []string{"destroy", "--topo", topoPath}
	if cleanup {
		args = append(args, "--cleanup")
	}
	return args
}

// RunClabCommand executes a clab command locally as the user running the API server.
func RunClabCommand(ctx context.Context, runtime, username string, args ...string) (stdout string, stderr string, err error) {
	// Add timeout to context if not already present
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	argv := BuildArgs(runtime, args...)
	commandString := strings.Join(argv, " ")
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	log.Debug("Executing command",
		"triggered_by_user", username,
		"runtime", runtime,
		"command", commandString,
	)

	startTime := time.Now()
	err = cmd.Run()
	duration := time.Since(startTime)

	stdout = outBuf.String()
	stderr = errBuf.String()

	if ctx.Err() == context.DeadlineExceeded {
		log.Error("Command timed out",
			"duration", duration,
			"triggered_by_user", username,
			"command", commandString,
		)
		return stdout, stderr, fmt.Errorf("clab command timed out after %s (triggered by user: %s)", duration, username)
	}

	if err != nil {
		log.Error("Command failed",
			"triggered_by_user", username,
			"duration", duration,
			"error", err,
			"stderr", stderr,
		)
		return stdout, stderr, fmt.Errorf("clab command failed (triggered by user: %s, duration: %s): %w\nstderr: %s", username, duration, err, stderr)
	}

	log.Debug("Command successful",
		"triggered_by_user", username,
		"duration", duration,
		"stdout_len", len(stdout),
		"stderr_len", len(stderr),
	)
	return stdout, stderr, nil
}

// ResolveTopoPath makes a topology path absolute against baseDir, folding
// "." and ".." segments. Absolute paths are returned unchanged. Lab hosts
// are POSIX, so resolution is independent of the server's OS.
func ResolveTopoPath(baseDir, topoPath string) string {
	if topoPath == "" || path.IsAbs(topoPath) {
		return topoPath
	}
	return path.Join(baseDir, topoPath)
}

// SanitizeFilename validates an uploaded topology filename.
// Only a bare file name is accepted; directories and traversal are rejected.
func SanitizeFilename(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "." || trimmed == ".." ||
		strings.ContainsAny(trimmed, "/\\\x00") || len(trimmed) > 255 {
		log.Warn("Rejected topology filename", "requested_name", name)
		return "", fmt.Errorf("invalid filename: '%s' must be a plain file name", name)
	}
	return trimmed, nil
}
