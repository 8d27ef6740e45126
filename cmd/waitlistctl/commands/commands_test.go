package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, storePath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--store", storePath, "--timezone", "UTC"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, storePath string, args ...string) string {
	t.Helper()
	out, err := run(t, storePath, args...)
	require.NoError(t, err, out)
	return out
}

func TestStartDayIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")

	out := mustRun(t, path, "start-day", "--date", "2026-10-19")
	assert.Contains(t, out, "Started list 1 for 2026-10-19")

	out = mustRun(t, path, "start-day", "--date", "2026-10-19")
	assert.Contains(t, out, "already exists")
}

func TestAddToggleMoveShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	mustRun(t, path, "start-day", "--date", "2026-10-19")
	for _, puppy := range []string{"Milo", "Bella", "Rex"} {
		out := mustRun(t, path, "add", "--date", "2026-10-19",
			"--puppy", puppy, "--owner", "Ana", "--service", "Bath",
			"--arrival", "2026-10-19T09:00:00Z")
		assert.Contains(t, out, "Added "+puppy)
	}

	out := mustRun(t, path, "toggle", "2")
	assert.Contains(t, out, "Bella (entry 2) is now COMPLETED")

	out = mustRun(t, path, "move", "3", "0")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Rex")
	assert.Contains(t, lines[2], "Milo")

	out = mustRun(t, path, "show", "--date", "2026-10-19", "--status", "serviced")
	assert.Contains(t, out, "total 3  waiting 2  serviced 1")
	assert.Contains(t, out, "Bella")
	assert.NotContains(t, out, "Milo")
}

func TestAddRequiresStartedDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	_, err := run(t, path, "add", "--date", "2026-10-20",
		"--puppy", "Milo", "--owner", "Ana", "--service", "Bath",
		"--arrival", "2026-10-20T09:00:00Z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no list for 2026-10-20; run start-day first")

	out := mustRun(t, path, "days")
	assert.Empty(t, out)
}

func TestAddRejectsBlankName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	mustRun(t, path, "start-day", "--date", "2026-10-19")
	_, err := run(t, path, "add", "--date", "2026-10-19",
		"--puppy", "  ", "--owner", "Ana", "--service", "Bath",
		"--arrival", "2026-10-19T09:00:00Z")
	assert.Error(t, err)

	out := mustRun(t, path, "show", "--date", "2026-10-19")
	assert.Contains(t, out, "No entries.")
}

func TestShowUnknownDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	_, err := run(t, path, "show", "--date", "2026-01-01")
	assert.Error(t, err)
}

func TestDaysAndSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	for _, day := range []string{"2026-10-18", "2026-10-19", "2026-09-30"} {
		mustRun(t, path, "start-day", "--date", day)
	}
	mustRun(t, path, "add", "--date", "2026-10-18", "--puppy", "Milo", "--owner", "Ana",
		"--service", "Trim", "--arrival", "2026-10-18T10:00:00Z")
	mustRun(t, path, "add", "--date", "2026-10-19", "--puppy", "Rex", "--owner", "Milo Jones",
		"--service", "Bath", "--arrival", "2026-10-19T10:00:00Z")

	out := mustRun(t, path, "days", "--month", "2026-10")
	assert.Equal(t, "2026-10-18\n2026-10-19\n", out)

	out = mustRun(t, path, "days")
	assert.Equal(t, "2026-10-19\n2026-10-18\n2026-09-30\n", out)

	out = mustRun(t, path, "search", "milo")
	assert.Contains(t, out, "Milo")
	assert.Contains(t, out, "Milo Jones")

	out = mustRun(t, path, "search", "nobody")
	assert.Contains(t, out, "Nothing found.")
}

func TestImportKeepsRanksAndStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lists.json")
	file := filepath.Join(dir, "day.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`date: "2026-10-19"
entries:
  - puppy: Milo
    owner: Ana
    service: Bath
    arrival: 2026-10-19T09:00:00Z
    rank: 2
  - puppy: Bella
    owner: Bo
    service: Trim
    arrival: 2026-10-19T09:05:00Z
    status: COMPLETED
    rank: 1
`), 0o644))

	out := mustRun(t, path, "import", file)
	assert.Contains(t, out, "Imported 2 entries into 2026-10-19")

	out = mustRun(t, path, "show", "--date", "2026-10-19")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[3], "Bella")
	assert.Contains(t, lines[3], "COMPLETED")
	assert.Contains(t, lines[4], "Milo")
}

func TestImportRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lists.json")
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("date: \"19/10/2026\"\nentries: []\n"), 0o644))

	_, err := run(t, path, "import", file)
	assert.Error(t, err)

	out := mustRun(t, path, "days")
	assert.Empty(t, out)
}
