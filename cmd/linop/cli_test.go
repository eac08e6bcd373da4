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
)

func writeJSON(t *testing.T, v any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var simple = [][]float64{
	{3, -1, 0},
	{-1, 3, 0},
	{0, 0, 3},
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "linop version "+version+"\n", out)

	out, err = run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestSolve(t *testing.T) {
	matrix := writeJSON(t, simple)
	rhs := writeJSON(t, []float64{2, 2, 3})

	out, err := run(t, "solve", matrix, "--rhs", rhs)
	require.NoError(t, err)

	// A⁻¹ (2, 2, 3) = (1, 1, 1)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		require.Len(t, fields, 3)
		assert.True(t, strings.HasPrefix(fields[2], "1") || strings.HasPrefix(fields[2], "0.99999"), line)
	}
}

func TestLogDet(t *testing.T) {
	matrix := writeJSON(t, simple)

	out, err := run(t, "logdet", matrix, "--samples", "200", "--seed", "1", "--grad")
	require.NoError(t, err)
	assert.Contains(t, out, "log_det")
	assert.NotContains(t, out, "inv_quad")

	out, err = run(t, "logdet", matrix, "--rhs", writeJSON(t, []float64{1, 0, 0}), "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "inv_quad")
}

func TestRoot(t *testing.T) {
	matrix := writeJSON(t, simple)

	for _, flags := range [][]string{nil, {"--inverse"}, {"--pc", "--rank", "1"}} {
		out, err := run(t, append([]string{"root", matrix, "--seed", "0"}, flags...)...)
		require.NoError(t, err, flags)
		assert.NotEmpty(t, out)
	}

	_, err := run(t, "root", matrix, "--inverse", "--pc")
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := run(t, "solve", writeJSON(t, [][]float64{{1, 2}, {3}}))
	assert.ErrorContains(t, err, "row 1")

	_, err = run(t, "solve", writeJSON(t, [][]float64{{1, 2}, {3, 4}}))
	assert.Error(t, err)

	_, err = run(t, "solve", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestEnv(t *testing.T) {
	t.Setenv("LINOP_NUM_TRACE_SAMPLES", "42")
	out, err := run(t, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "LINOP_NUM_TRACE_SAMPLES")
	assert.Contains(t, out, "42")
}

func TestSolve_ScaleJitterPrecond(t *testing.T) {
	matrix := writeJSON(t, simple)
	// 2A + I = [[7, -2, 0], [-2, 7, 0], [0, 0, 7]], so x = (1, 1, 1).
	rhs := writeJSON(t, []float64{5, 5, 7})

	for _, precond := range []string{"none", "jacobi", "pivchol"} {
		out, err := run(t, "solve", matrix, "--rhs", rhs, "--scale", "2", "--jitter", "1", "--precond", precond, "--rank", "2")
		require.NoError(t, err, precond)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 4)
		for _, line := range lines[1:] {
			fields := strings.Fields(line)
			require.Len(t, fields, 3)
			assert.True(t, strings.HasPrefix(fields[2], "1") || strings.HasPrefix(fields[2], "0.99999"), precond+": "+line)
		}
	}

	_, err := run(t, "solve", matrix, "--precond", "ilu")
	assert.ErrorContains(t, err, `unknown preconditioner "ilu"`)

	_, err = run(t, "solve", matrix, "--scale", "0")
	assert.ErrorContains(t, err, "invalid constant")
}

func TestRoot_MaxCholesky(t *testing.T) {
	matrix := writeJSON(t, simple)

	// A dense Cholesky root is lower triangular; entry (0, 2) prints as 0.
	out, err := run(t, "root", matrix, "--max-cholesky", "9")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "0", strings.Fields(lines[1])[2])

	out, err = run(t, "root", matrix, "--max-cholesky", "-1", "--seed", "0")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
