package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--data-dir", dir}, args...))
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestCLI_AddSearchStats(t *testing.T) {
	dir := t.TempDir()

	id := run(t, dir, "add", "rust programming language systems", "--topic", "programming/rust")
	require.NotEmpty(t, id)

	run(t, dir, "add", "python programming language scripting", "--topic", "programming/python")
	run(t, dir, "add", "cooking italian pasta recipes", "--topic", "cooking/italian")

	out := run(t, dir, "stats", "--json")
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 3, stats.Volumes)

	searchOut := run(t, dir, "search", "programming", "--k", "5")
	require.Contains(t, searchOut, "programming")

	topicsOut := run(t, dir, "topics", "programming")
	require.Contains(t, topicsOut, "2 volume(s)")
}

func TestCLI_AddRejectsMalformedMeta(t *testing.T) {
	dir := t.TempDir()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dir, "add", "text", "--meta", "no-equals-sign"})
	err := cmd.Execute()
	require.Error(t, err)
}

func TestCLI_FlushAndDeskDrain(t *testing.T) {
	dir := t.TempDir()
	run(t, dir, "add", "a volume worth keeping")
	run(t, dir, "flush")
	out := run(t, dir, "desk", "drain")
	require.Contains(t, out, "drained")
}
