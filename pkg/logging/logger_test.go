// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "mentor", LogDir: dir, Quiet: true})

	logger.Info("turn processed", "session_id", "s-1", "seq", 4)
	require.NoError(t, logger.Close())

	name := filepath.Join(dir, "mentor_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "turn processed", entry["msg"])
	assert.Equal(t, "mentor", entry["service"])
	assert.Equal(t, "s-1", entry["session_id"])
}

func TestLevelFiltersDebug(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "mentor", LogDir: dir, Quiet: true})

	logger.Debug("dropped")
	logger.Info("kept")
	require.NoError(t, logger.Close())

	name := filepath.Join(dir, "mentor_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "dropped")
}

func TestDebugLevelEnabled(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "mentor", LogDir: dir, Quiet: true, Level: slog.LevelDebug})

	logger.Debug("verbose detail")
	require.NoError(t, logger.Close())

	name := filepath.Join(dir, "mentor_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "verbose detail")
}

func TestQuietWithoutFileDiscards(t *testing.T) {
	logger := New(Config{Quiet: true})
	// Must not panic and must close cleanly with no file handle.
	logger.Info("nowhere to go")
	assert.NoError(t, logger.Close())
}

func TestBadLogDirDegradesToStderr(t *testing.T) {
	logger := New(Config{LogDir: "/proc/definitely/not/writable"})
	logger.Info("still alive")
	assert.NoError(t, logger.Close())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".aleutian/logs"), expandPath("~/.aleutian/logs"))
	assert.Equal(t, "/var/log/mentor", expandPath("/var/log/mentor"))
}
