package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorderAppendsNDJSON(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(FileRecorderConfig{BasePath: dir})
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.Record(NewRecord(EventInvalidAssertion, map[string]interface{}{"reason": "expired"}, time.Now().UTC())))
	require.NoError(t, rec.Record(NewRecord(EventReplayDetected, map[string]interface{}{"jti": "x"}, time.Now().UTC())))
	require.NoError(t, rec.Close())

	f, err := os.Open(filepath.Join(dir, "security.log"))
	require.NoError(t, err)
	defer f.Close()

	var events []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
		events = append(events, got.Event)
	}
	assert.Equal(t, []string{EventInvalidAssertion, EventReplayDetected}, events)
}

func TestFileRecorderRotatesWhenFull(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(FileRecorderConfig{BasePath: dir, MaxSize: 64})
	require.NoError(t, err)
	defer rec.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, rec.Record(NewRecord(EventRefreshRejected, map[string]interface{}{
			"user_id": "user-with-a-long-identifier",
			"reason":  "membership inactive",
		}, time.Now().UTC())))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "expected at least one rotated file")
}
