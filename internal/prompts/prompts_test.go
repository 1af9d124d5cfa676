package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StyleLabelled, b.Style())

	p, err := b.Challenge("The mitochondria is the powerhouse of the cell.", 3)
	require.NoError(t, err)
	assert.Contains(t, p, "write 3 questions")
	assert.Contains(t, p, "1. Q: <question>")
	assert.Contains(t, p, "powerhouse of the cell")

	p, err = b.Evaluate("doc", "What?", "This.", "That.")
	require.NoError(t, err)
	assert.Contains(t, p, "Reference answer: This.")
	assert.Contains(t, p, "Student answer: That.")
	assert.Contains(t, p, "Score: <integer from 0 to 10>")
}

func TestStructuredStyle(t *testing.T) {
	b, err := New(StyleStructured)
	require.NoError(t, err)
	p, err := b.Challenge("doc", 5)
	require.NoError(t, err)
	assert.Contains(t, p, `{"questions":`)
	p, err = b.Summary("doc")
	require.NoError(t, err)
	assert.Contains(t, p, "150 words")
}

func TestLoadOverridesAndClips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := strings.Join([]string{
		"style: labelled",
		"max_context_chars: 8",
		"templates:",
		"  ask: |",
		"    Q={{.Question}} D={{.Document}}",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := Load(path)
	require.NoError(t, err)
	p, err := b.Ask("0123456789abcdef", "why?")
	require.NoError(t, err)
	assert.Equal(t, "Q=why? D=01234567", p)

	// untouched templates keep their defaults
	p, err = b.Summary("x")
	require.NoError(t, err)
	assert.Contains(t, p, "Summarize")
}

func TestLoadRejectsUnknown(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "style.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("style: poetic\n"), 0o644))
	_, err := Load(bad)
	assert.Error(t, err)

	unknown := filepath.Join(dir, "kind.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("templates:\n  haiku: hi\n"), 0o644))
	_, err = Load(unknown)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "h", clip("hé", 2))
	assert.Equal(t, "hé", clip("hé", 3))
	assert.Equal(t, "abc", clip("abc", 0))
}
