// Package command implements llm.Client by running a local executable. The
// request is written to stdin as JSON and stdout is taken as the completion.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/llm"
)

// waitDelay caps how long Generate waits for output pipes after the process
// is killed.
const waitDelay = 2 * time.Second

// Client runs one process per Generate call.
type Client struct {
	executable string
	args       []string
	workingDir string
}

// NewClient checks that an executable was given.
func NewClient(executable string, args []string, workingDir string) (*Client, error) {
	if strings.TrimSpace(executable) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "llm command executable is required")
	}
	return &Client{
		executable: ResolvePath(workingDir, executable),
		args:       append([]string(nil), args...),
		workingDir: workingDir,
	}, nil
}

type stdinPayload struct {
	Purpose string `json:"purpose"`
	Prompt  string `json:"prompt"`
}

// Generate runs the executable and returns its trimmed stdout.
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	encoded, err := json.Marshal(stdinPayload{
		Purpose: string(req.Purpose),
		Prompt:  req.Prompt,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "encode command input")
	}

	cmd := exec.CommandContext(ctx, c.executable, c.args...)
	if c.workingDir != "" {
		cmd.Dir = c.workingDir
	}
	cmd.Stdin = bytes.NewReader(encoded)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctxErr, string(req.Purpose)+" command timed out")
		}
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "llm command failed",
			xerrors.WithMetadata("purpose", string(req.Purpose)),
			xerrors.WithMetadata("stderr", strings.TrimSpace(stderr.String())),
		)
	}

	return &llm.Response{Text: strings.TrimSpace(stdout.String())}, nil
}

// ResolvePath makes a relative executable path absolute against baseDir.
// Bare command names are left for PATH lookup.
func ResolvePath(baseDir, executable string) string {
	if executable == "" || filepath.IsAbs(executable) || baseDir == "" {
		return executable
	}
	if !strings.ContainsRune(executable, filepath.Separator) {
		return executable
	}
	return filepath.Join(baseDir, executable)
}
