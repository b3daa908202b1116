package rclone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLsf(t *testing.T) {
	output := "docs/readme.md;2026-01-15 10:30:00;1024\n" +
		"song.mp3;2026-02-01 08:00:30;5242880\n"

	snapshot, err := parseLsf(output, false)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	readme := snapshot["docs/readme.md"]
	require.NotNil(t, readme)
	assert.Equal(t, int64(1024), readme.Size)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.Local), readme.ModTime)
	assert.Empty(t, readme.Hash)
}

func TestParseLsfWithHash(t *testing.T) {
	output := "a.txt;2026-01-15 10:30:00;10;0cc175b9c0f1b6a831c399e269772661\n"

	snapshot, err := parseLsf(output, true)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "0cc175b9c0f1b6a831c399e269772661", snapshot["a.txt"].Hash)
}

func TestParseLsfSemicolonInFilename(t *testing.T) {
	// fields are split from the right, the path may contain semicolons
	output := "weird;name;really.txt;2026-01-15 10:30:00;7\n"

	snapshot, err := parseLsf(output, false)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	record := snapshot["weird;name;really.txt"]
	require.NotNil(t, record)
	assert.Equal(t, int64(7), record.Size)
}

func TestParseLsfEmpty(t *testing.T) {
	snapshot, err := parseLsf("", false)
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	snapshot, err = parseLsf("\n\n", false)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestParseLsfMalformed(t *testing.T) {
	t.Run("missing fields", func(t *testing.T) {
		_, err := parseLsf("just-a-path\n", false)
		assert.Error(t, err)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, err := parseLsf("a.txt;not-a-time;10\n", false)
		assert.Error(t, err)
	})

	t.Run("bad size", func(t *testing.T) {
		_, err := parseLsf("a.txt;2026-01-15 10:30:00;x\n", false)
		assert.Error(t, err)
	})

	t.Run("negative size", func(t *testing.T) {
		_, err := parseLsf("a.txt;2026-01-15 10:30:00;-5\n", false)
		assert.Error(t, err)
	})
}

func TestRsplit(t *testing.T) {
	assert.Equal(t, []string{"a;b", "c", "d"}, rsplit("a;b;c;d", ';', 3))
	assert.Equal(t, []string{"abc"}, rsplit("abc", ';', 3))
	assert.Equal(t, []string{"a", "b"}, rsplit("a;b", ';', 2))
}
