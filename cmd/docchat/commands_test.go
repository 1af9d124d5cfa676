package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/docchat/internal/extract"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeDoc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestExtractQAFromStdin(t *testing.T) {
	input := "1. Q: First?\nA: One.\n2. Q: Second?\nA: Two.\n"
	out, _, err := run(t, input, "extract", "qa", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Q: First?")
	assert.Contains(t, out, "2. Q: Second?")
}

func TestExtractQAJSONWithCount(t *testing.T) {
	path := writeDoc(t, "reply.txt", "1. Q: A?\nA: a\n2. Q: B?\nA: b\n3. Q: C?\nA: c\n")
	out, _, err := run(t, "", "extract", "qa", "--count", "2", "--json", path)
	require.NoError(t, err)
	var got struct {
		Format  extract.Format   `json:"format"`
		QAPairs []extract.QAPair `json:"qa_pairs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, extract.FormatLabelled, got.Format)
	require.Len(t, got.QAPairs, 2)
	assert.Equal(t, "B?", got.QAPairs[1].Question)
}

func TestExtractQANoMatches(t *testing.T) {
	_, _, err := run(t, "nothing here", "extract", "qa")
	assert.Error(t, err)
}

func TestExtractEval(t *testing.T) {
	out, _, err := run(t, "Score: 7\nCorrect Answer: Paris\nFeedback: Good.", "extract", "eval")
	require.NoError(t, err)
	assert.Contains(t, out, "Score: 7")
	assert.Contains(t, out, "Correct Answer: Paris")

	out, _, err = run(t, "no grade", "extract", "eval", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"score": null`)
}

func TestAskWithLoopback(t *testing.T) {
	doc := writeDoc(t, "notes.txt", "The capital of France is Paris.")
	out, _, err := run(t, "", "--config-root", t.TempDir(), "--loopback", "ask", "--doc", doc, "--question", "What is the capital?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[loopback] "), out)
	assert.Contains(t, out, "What is the capital?")
}

func TestAskRequiresQuestion(t *testing.T) {
	doc := writeDoc(t, "notes.txt", "text")
	_, _, err := run(t, "", "--config-root", t.TempDir(), "--loopback", "ask", "--doc", doc, "--question", " ")
	assert.Error(t, err)
}

func TestSummaryRejectsUnsupportedDocument(t *testing.T) {
	doc := writeDoc(t, "image.png", "binary")
	_, _, err := run(t, "", "--config-root", t.TempDir(), "--loopback", "summary", "--doc", doc)
	assert.Error(t, err)
}

func TestModelsWithLoopback(t *testing.T) {
	out, _, err := run(t, "", "--config-root", t.TempDir(), "--loopback", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "* loopback")
}

func TestInitWritesConfig(t *testing.T) {
	root := t.TempDir()
	_, _, err := run(t, "", "init", "--root", root, "--store-dsn", filepath.Join(root, "docchat.db"), "--model-name", "mistral")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "config", "dev", "docchat.ini"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "model=mistral")
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version=")
}
