package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetSetting returns the raw value stored under key. found is false when
// the key has never been written.
func (db *DB) GetSetting(key string) (value string, found bool, err error) {
	err = db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// ListSettings returns every stored key and its raw value.
func (db *DB) ListSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// CheckRecord is one row of the checks table.
type CheckRecord struct {
	CheckID        int64     `yaml:"check_id"`
	TabID          int       `yaml:"tab_id"`
	Kind           string    `yaml:"kind"`
	Passive        bool      `yaml:"passive"`
	OriginURL      string    `yaml:"origin_url,omitempty"`
	Domain         string    `yaml:"domain,omitempty"`
	Outcome        string    `yaml:"outcome"`
	Classification string    `yaml:"classification,omitempty"`
	Accuracy       string    `yaml:"accuracy,omitempty"`
	RecordID       string    `yaml:"record_id,omitempty"`
	ShareLink      string    `yaml:"share_link,omitempty"`
	DurationMS     int64     `yaml:"duration_ms"`
	CreatedAt      time.Time `yaml:"created_at"`
}

// InsertCheck records a finished verification attempt.
func (db *DB) InsertCheck(rec CheckRecord) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO checks (tab_id, kind, passive, origin_url, domain, outcome,
			classification, accuracy, record_id, share_link, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TabID, rec.Kind, rec.Passive, NewNullString(rec.OriginURL), NewNullString(rec.Domain), rec.Outcome,
		NewNullString(rec.Classification), NewNullString(rec.Accuracy), NewNullString(rec.RecordID),
		NewNullString(rec.ShareLink), rec.DurationMS)
	if err != nil {
		return 0, fmt.Errorf("failed to insert check: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get check ID: %w", err)
	}
	return id, nil
}

// CheckFilter narrows ListChecks. Zero values mean no filter.
type CheckFilter struct {
	Limit   int
	Outcome string
	Domain  string
}

// ListChecks returns the most recent checks first.
func (db *DB) ListChecks(f CheckFilter) ([]CheckRecord, error) {
	query := `
		SELECT check_id, tab_id, kind, passive, origin_url, domain, outcome,
			classification, accuracy, record_id, share_link, duration_ms, created_at
		FROM checks WHERE 1=1`
	var args []any
	if f.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, f.Outcome)
	}
	if f.Domain != "" {
		query += " AND domain = ?"
		args = append(args, f.Domain)
	}
	query += " ORDER BY created_at DESC, check_id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	var checks []CheckRecord
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, rec)
	}
	return checks, rows.Err()
}

// GetCheck returns one check by ID.
func (db *DB) GetCheck(checkID int64) (CheckRecord, error) {
	row := db.QueryRow(`
		SELECT check_id, tab_id, kind, passive, origin_url, domain, outcome,
			classification, accuracy, record_id, share_link, duration_ms, created_at
		FROM checks WHERE check_id = ?`, checkID)
	rec, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("check %d not found", checkID)
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheck(row rowScanner) (CheckRecord, error) {
	var rec CheckRecord
	var origin, domain, class, accuracy, recordID, share sql.NullString
	if err := row.Scan(&rec.CheckID, &rec.TabID, &rec.Kind, &rec.Passive, &origin, &domain, &rec.Outcome,
		&class, &accuracy, &recordID, &share, &rec.DurationMS, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan check: %w", err)
	}
	rec.OriginURL = origin.String
	rec.Domain = domain.String
	rec.Classification = class.String
	rec.Accuracy = accuracy.String
	rec.RecordID = recordID.String
	rec.ShareLink = share.String
	return rec, nil
}

// CountChecksByClassification groups failed checks by classification.
func (db *DB) CountChecksByClassification() (map[string]int, error) {
	rows, err := db.Query(`
		SELECT classification, COUNT(*) FROM checks
		WHERE outcome != 'succeeded' AND classification IS NOT NULL
		GROUP BY classification
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count checks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		out[class] = n
	}
	return out, rows.Err()
}

// NewNullString converts empty strings to NULL.
func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
