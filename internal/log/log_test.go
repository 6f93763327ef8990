package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWriter_FormatsCategoryAndLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	Info(CatFetch, "series fetched", "series", "WALCL", "points", 42)

	line := buf.String()
	require.Contains(t, line, "[INFO]")
	require.Contains(t, line, "[fetch]")
	require.Contains(t, line, "series fetched")
	require.Contains(t, line, `"series": "WALCL"`)
	require.Contains(t, line, `"points": 42`)
}

func TestMinLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelInfo)

	Debug(CatRun, "hidden")
	require.Empty(t, buf.String())

	SetMinLevel(LevelDebug)
	Debug(CatRun, "shown")
	require.Contains(t, buf.String(), "shown")
}

func TestSetEnabled(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	SetEnabled(false)
	Error(CatRun, "dropped")
	require.Empty(t, buf.String())

	SetEnabled(true)
	Error(CatRun, "kept")
	require.Contains(t, buf.String(), "kept")
}

func TestErrorErr_NilAndOrphanKey(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	ErrorErr(CatPublish, "replace failed", nil, "orphan")

	line := buf.String()
	require.Contains(t, line, `"orphan": "<missing>"`)
	require.Contains(t, line, `"error": "<nil>"`)
}

func TestInit_WritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "run.log")
	var console bytes.Buffer

	cleanup, err := Init(Options{Path: path, Console: &console, Debug: true})
	require.NoError(t, err)

	Debug(CatLock, "debug only in file")
	Warn(CatLock, "warn everywhere")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "debug only in file")
	require.Contains(t, string(data), "warn everywhere")

	require.False(t, strings.Contains(console.String(), "debug only in file"))
	require.Contains(t, console.String(), "warn everywhere")
}
