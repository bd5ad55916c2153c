package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExperimentDir(t *testing.T, root, name string, finished time.Time) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	summary := filepath.Join(dir, experimentFileName)
	require.NoError(t, os.WriteFile(summary, []byte("{}"), 0o600))
	require.NoError(t, os.Chtimes(summary, finished, finished))
	return dir
}

func TestCleanDeletesOnlyOldFinishedExperiments(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	old := writeExperimentDir(t, root, "old-exp", now.Add(-100*time.Hour))
	fresh := writeExperimentDir(t, root, "fresh-exp", now.Add(-time.Hour))
	running := filepath.Join(root, "running-exp")
	require.NoError(t, os.MkdirAll(running, 0o700))

	var out bytes.Buffer
	require.NoError(t, cleanResults(&out, root, now.Add(-72*time.Hour), false))

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "old experiment should be deleted")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh experiment should survive")
	_, err = os.Stat(running)
	assert.NoError(t, err, "directory without a summary should survive")
	assert.Contains(t, out.String(), "deleted")
}

func TestCleanDryRunDeletesNothing(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	old := writeExperimentDir(t, root, "old-exp", now.Add(-100*time.Hour))

	var out bytes.Buffer
	require.NoError(t, cleanResults(&out, root, now.Add(-72*time.Hour), true))

	_, err := os.Stat(old)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "would delete")
}

func TestCopyFromFollowsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, resultFileName)

	var out bytes.Buffer
	offset, err := copyFrom(&out, path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset, "missing file reads nothing")

	require.NoError(t, os.WriteFile(path, []byte("row1\n"), 0o600))
	offset, err = copyFrom(&out, path, offset)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("row2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = copyFrom(&out, path, offset)
	require.NoError(t, err)
	assert.Equal(t, "row1\nrow2\n", out.String())
}

func TestLookupObjective(t *testing.T) {
	_, err := lookupObjective("bowl")
	require.NoError(t, err)
	_, err = lookupObjective("nope")
	assert.ErrorContains(t, err, "unknown objective")
}
