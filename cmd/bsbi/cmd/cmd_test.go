package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func collection(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	docs := map[string]string{
		"A/a": "cat dog dog",
		"B/b": "dog",
		"B/c": "the bird sings",
	}
	for rel, text := range docs {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(text), 0644))
	}
	return root
}

func TestBuildQueryInspect(t *testing.T) {
	root, out := collection(t), t.TempDir()

	stdout, err := run(t, "build", "--collection", root, "--output", out, "--format", "json", "--log-level", "error")
	require.NoError(t, err)
	var report indexer.BuildReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 2, report.Blocks)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, "main_index", report.Index)

	stdout, err = run(t, "query", "cats", "and", "dogs", "--output", out, "--scheme", "binary", "-n", "0", "--format", "json", "--log-level", "error")
	require.NoError(t, err)
	var results []executor.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "A/a", results[0].Key)
	assert.Equal(t, 2.0, results[0].Score)

	stdout, err = run(t, "query", "bird", "--output", out, "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "\tB/c"), stdout)

	stdout, err = run(t, "query", "dog", "cat", "--output", out, "--collection", root, "--rerank", "--format", "json", "--log-level", "error")
	require.NoError(t, err)
	results = nil
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "A/a", results[0].Key)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "B/b", results[1].Key)
	assert.Equal(t, 0.5, results[1].Score)

	stdout, err = run(t, "query", "zebra", "--output", out, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no matching documents")

	stdout, err = run(t, "inspect", "--output", out, "--term", "dogs", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "terms          4")
	assert.Contains(t, stdout, "A/a\t2")
}

func TestCommandErrors(t *testing.T) {
	root, out := collection(t), t.TempDir()
	_, err := run(t, "build", "--collection", root, "--output", out, "--log-level", "error")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown scheme", []string{"query", "dog", "--output", out, "--scheme", "cosine"}, apperrors.ErrInvalidInput},
		{"unknown codec", []string{"build", "--collection", root, "--output", t.TempDir(), "--codec", "gamma"}, apperrors.ErrInvalidInput},
		{"bad frequency mode", []string{"build", "--collection", root, "--output", t.TempDir(), "--frequency", "sometimes"}, apperrors.ErrInvalidInput},
		{"missing index", []string{"query", "dog", "--output", t.TempDir()}, apperrors.ErrIOFailure},
		{"rerank without documents", []string{"query", "dog", "--output", out, "--rerank", "--collection", t.TempDir()}, apperrors.ErrIOFailure},
		{"empty collection", []string{"build", "--collection", t.TempDir(), "--output", t.TempDir()}, apperrors.ErrPreconditionViolation},
		{"watch without brokers", []string{"watch"}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--log-level", "error")...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
