package audit

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []Record {
	ts := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	return []Record{
		{ID: 1, Timestamp: ts, Event: EventReplayDetected, UserID: "user-1", Fields: map[string]interface{}{"jti": "a"}},
		{ID: 2, Timestamp: ts.Add(time.Minute), Event: EventRefreshRejected, UserID: "user-2", OrganizationID: "org-1"},
	}
}

func TestExportNDJSON(t *testing.T) {
	out, err := Export(exportFixture(), FormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, EventReplayDetected, first.Event)
}

func TestExportCSV(t *testing.T) {
	out, err := Export(exportFixture(), FormatCSV)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Event", rows[0][2])
	assert.Equal(t, EventRefreshRejected, rows[2][2])
	assert.Equal(t, "org-1", rows[2][4])
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := Export(exportFixture(), ExportFormat("xml"))
	assert.Error(t, err)
}
