package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astapp/internal/model"
)

const validForm = `APP { id: "recruits"; pass_score: 70; }
QUESTION "q1" TYPE "short_answer" { text: "Why?"; max_length: 100; }
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.astappcnt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		fmtWrite = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", writeTemp(t, validForm))
	require.NoError(t, err)

	var cfg model.FormConfig
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "recruits", cfg.AppID())
	require.Len(t, cfg.Questions, 1)
	assert.Equal(t, model.QuestionTypeShortAnswer, cfg.Questions[0].Type)
}

func TestFmtCommand(t *testing.T) {
	path := writeTemp(t, validForm)

	out, err := execute(t, "fmt", path)
	require.NoError(t, err)
	assert.Contains(t, out, "APP {\n")
	assert.Contains(t, out, `QUESTION "q1" TYPE "short_answer" {`)

	_, err = execute(t, "fmt", "-w", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeTemp(t, validForm))
	require.NoError(t, err)
	assert.Contains(t, out, "ok (1 questions)")

	out, err = execute(t, "validate", writeTemp(t, `QUESTION "q1" TYPE "short_answer" { text: "Why?"; }`))
	assert.Error(t, err)
	assert.Contains(t, out, "must set max_length")
}

func TestMissingFile(t *testing.T) {
	_, err := execute(t, "parse", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
