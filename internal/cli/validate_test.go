package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/compiler"
)

func executeValidate(t *testing.T, format string, verbose bool, dir string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format, Verbose: verbose})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidate_ValidSpecs(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})

	out, _, err := executeValidate(t, "text", false, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All specs valid (2 classes, 2 machines)")
}

func TestValidate_ValidSpecsJSON(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})

	out, _, err := executeValidate(t, "json", false, dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Machines)
}

func TestValidate_NonExistentDirectory(t *testing.T) {
	out, _, err := executeValidate(t, "text", false, "/nonexistent/specs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidate_EmptyDirectory(t *testing.T) {
	dir := writeSpecs(t, nil)

	out, _, err := executeValidate(t, "text", false, dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNoFiles)
}

func TestValidate_SyntaxError(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"bad.cue": "package plant\n\nclass: {\n"})

	_, _, err := executeValidate(t, "text", false, dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_UnknownClass(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": unknownClassSpec})

	out, _, err := executeValidate(t, "text", false, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownClass)
}

func TestValidate_UnknownClassJSON(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": unknownClassSpec})

	out, _, err := executeValidate(t, "json", false, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownClass, resp.Error.Code)
}

func TestValidate_ReportsCycleWarnings(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"interlock.cue": interlockSpec})

	out, _, err := executeValidate(t, "text", false, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: dependency cycle")
}

func TestValidate_VerboseGoesToStderr(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})

	out, errOut, err := executeValidate(t, "json", true, dir)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Validating class: Valve")
	assert.NotContains(t, out, "Validating")
}

func TestValidateSpecsDir(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"plant.cue": plantSpec})
	errs, err := ValidateSpecsDir(dir)
	require.NoError(t, err)
	assert.Empty(t, errs)

	dir = writeSpecs(t, map[string]string{"plant.cue": unknownClassSpec})
	errs, err = ValidateSpecsDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, compiler.ErrUnknownClass, errs[0].Code)

	_, err = ValidateSpecsDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
