package command

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/llm"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-llm.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewClientRequiresExecutable(t *testing.T) {
	_, err := NewClient(" ", nil, "")
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestGenerateReadsStdout(t *testing.T) {
	script := writeScript(t, `input=$(cat); case "$input" in *'"purpose":"classify"'*) echo "  query_salesforce_records  ";; *) echo other;; esac`)

	client, err := NewClient(script, nil, "")
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.Request{Purpose: llm.PurposeClassify, Prompt: "show accounts"})
	require.NoError(t, err)
	assert.Equal(t, "query_salesforce_records", resp.Text)
}

func TestGenerateFailure(t *testing.T) {
	script := writeScript(t, `echo "model offline" >&2; exit 3`)

	client, err := NewClient(script, nil, "")
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.Request{Purpose: llm.PurposeSummarize})
	require.Error(t, err)
	xe, ok := xerrors.From(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.CodeLLMFailure, xe.Code())
	assert.Equal(t, "model offline", xe.Metadata()["stderr"])
}

func TestGenerateTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 2`)

	client, err := NewClient(script, nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Generate(ctx, llm.Request{Purpose: llm.PurposeExtract})
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "python3", ResolvePath("/srv", "python3"))
	assert.Equal(t, "/usr/bin/llm", ResolvePath("/srv", "/usr/bin/llm"))
	assert.Equal(t, filepath.Join("/srv", "scripts", "llm.sh"), ResolvePath("/srv", filepath.Join("scripts", "llm.sh")))
}
