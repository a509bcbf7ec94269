package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// ExportFormat selects the serialization for exported security events
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatNDJSON ExportFormat = "ndjson"
	FormatCSV    ExportFormat = "csv"
)

// Export serializes records in the requested format
func Export(records []Record, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		return exportJSON(records)
	case FormatNDJSON:
		return exportNDJSON(records)
	case FormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportJSON(records []Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

func exportNDJSON(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"ID", "Timestamp", "Event", "UserID", "OrganizationID", "Fields"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		var fieldsJSON []byte
		if rec.Fields != nil {
			var err error
			fieldsJSON, err = json.Marshal(rec.Fields)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal record fields: %w", err)
			}
		}
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			rec.Event,
			rec.UserID,
			rec.OrganizationID,
			string(fieldsJSON),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}
