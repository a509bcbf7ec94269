package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const recordTimeout = 5 * time.Second

// DBRecorder persists security events to PostgreSQL
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a database-backed security event recorder
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &DBRecorder{db: db}
	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure security_events table: %w", err)
	}
	return r, nil
}

// ensureTable creates the security_events table if it doesn't exist
func (r *DBRecorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS security_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event VARCHAR(100) NOT NULL,
		user_id VARCHAR(64),
		organization_id VARCHAR(64),
		fields JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_security_events_timestamp ON security_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_security_events_event ON security_events(event);
	CREATE INDEX IF NOT EXISTS idx_security_events_user_id ON security_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_security_events_organization_id ON security_events(organization_id);
	`

	_, err := r.db.Exec(query)
	return err
}

// Record inserts one security event. It carries its own timeout because the
// security logger calls it outside any request context.
func (r *DBRecorder) Record(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var fieldsJSON []byte
	if rec.Fields != nil {
		var err error
		fieldsJSON, err = json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal event fields: %w", err)
		}
	}

	query := `
		INSERT INTO security_events (timestamp, event, user_id, organization_id, fields)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		rec.Timestamp, rec.Event, rec.UserID, rec.OrganizationID, fieldsJSON,
	); err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// Search returns persisted events matching the filter, newest first
func (r *DBRecorder) Search(ctx context.Context, filter SearchFilter) ([]Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Event != "" {
		add("event = $%d", filter.Event)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.OrganizationID != "" {
		add("organization_id = $%d", filter.OrganizationID)
	}
	if !filter.Since.IsZero() {
		add("timestamp >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("timestamp <= $%d", filter.Until)
	}

	query := "SELECT id, timestamp, event, COALESCE(user_id, ''), COALESCE(organization_id, ''), fields FROM security_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search security events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var fieldsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Event, &rec.UserID, &rec.OrganizationID, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event fields: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Purge deletes events older than the cutoff and returns the number removed
func (r *DBRecorder) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM security_events WHERE timestamp < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge security events: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the recorder does not own the database handle
func (r *DBRecorder) Close() error {
	return nil
}
