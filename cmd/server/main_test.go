package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command without a config file or database.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	base := []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "--db", "", "--log-level", "error"}
	rootCmd.SetArgs(append(args, base...))
	err := rootCmd.Execute()
	return out.String(), err
}

const batchFile = `{
  "households": [
    {"kind": "foyer_fiscal", "id": "ff", "members": [{"kind": "individu", "id": "a", "role": "declarant"}]}
  ],
  "inputs": [
    {"kind": "foyer_fiscal", "id": "ff", "variable": "rbg", "period": "2013", "value": 30000},
    {"kind": "foyer_fiscal", "id": "ff", "variable": "reductions_diverses", "period": "2013", "value": "500"}
  ],
  "requests": [
    {"kind": "foyer_fiscal", "id": "ff", "variable": "iaidrdi", "period": "2013"}
  ]
}`

func writeBatch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVariablesCommand(t *testing.T) {
	out, err := execute(t, "variables", "--system", "plfr2014")
	require.NoError(t, err)
	assert.Contains(t, out, "reduction_impot_exceptionnelle")
	assert.Contains(t, out, "iaidrdi")
}

func TestParameterCommand(t *testing.T) {
	out, err := execute(t, "parameter", "ir.decote.seuil", "--at", "2013-06-01", "--system", "")
	require.NoError(t, err)
	assert.Contains(t, out, "= 1016")

	_, err = execute(t, "parameter", "ir.nope", "--at", "2013-06-01", "--system", "")
	assert.Error(t, err)
}

func TestCalculateCommand(t *testing.T) {
	// GIVEN: A batch file for one foyer
	// WHEN: Calculating on the reference and on a reform
	// THEN: Each prints the value of the request

	path := writeBatch(t, batchFile)

	out, err := execute(t, "calculate", "--file", path, "--system", "")
	require.NoError(t, err)
	assert.Contains(t, out, "2889.2")

	out, err = execute(t, "calculate", "--file", path, "--system", "no_tax_reductions")
	require.NoError(t, err)
	assert.Contains(t, out, "3389.2")
}

func TestCalculateCommand_Failure(t *testing.T) {
	path := writeBatch(t, batchFile)

	out, err := execute(t, "calculate", "--file", path, "--system", "nope")
	assert.Error(t, err)
	assert.NotContains(t, out, "2889.2")
}
