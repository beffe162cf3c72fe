// Package store provides storage backends for patient and visit records.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/visit"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path
// to the database file). The parent directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FindPatient(userID string) (*models.Patient, error) {
	var p models.Patient
	err := s.db.QueryRow(`SELECT user_id, name, age, gender FROM patients WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Name, &p.Age, &p.Gender)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindPatient failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query patient %s: %w", userID, err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertPatient(p models.Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO patients (user_id, name, age, gender) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, age = excluded.age, gender = excluded.gender`,
		p.UserID, p.Name, p.Age, p.Gender)
	if err != nil {
		slog.Error("SQLiteStore UpsertPatient failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to upsert patient %s: %w", p.UserID, err)
	}
	slog.Debug("SQLiteStore UpsertPatient succeeded", "userID", p.UserID)
	return nil
}

func (s *SQLiteStore) AddVisit(v models.VisitRecord) error {
	payload, err := marshalVisitPayload(v)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO visits (id, user_id, visit_code, visit_timestamp, ts_key, visit_link, payload, diagnosis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.VisitCode, v.VisitTimestamp, visit.TimestampKey(v.VisitTimestamp), v.VisitLink, payload, v.Diagnosis)
	if err != nil {
		slog.Error("SQLiteStore AddVisit failed", "error", err, "userID", v.UserID, "visitCode", v.VisitCode)
		return fmt.Errorf("failed to insert visit %s: %w", v.VisitCode, err)
	}
	slog.Debug("SQLiteStore AddVisit succeeded", "userID", v.UserID, "visitCode", v.VisitCode)
	return nil
}

func (s *SQLiteStore) FindVisitByPrefix(userID, tsPrefix string) (*models.VisitRecord, error) {
	row := s.db.QueryRow(`SELECT id, user_id, visit_code, visit_timestamp, visit_link, payload, diagnosis
		FROM visits WHERE user_id = ? AND ts_key LIKE ? || '%' ORDER BY ts_key LIMIT 1`, userID, tsPrefix)
	v, err := scanVisitRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindVisitByPrefix failed", "error", err, "userID", userID, "tsPrefix", tsPrefix)
		return nil, fmt.Errorf("failed to query visit for %s: %w", userID, err)
	}
	return v, nil
}

func (s *SQLiteStore) ListVisits(userID string) ([]models.VisitRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, visit_code, visit_timestamp, visit_link, payload, diagnosis
		FROM visits WHERE user_id = ? ORDER BY visit_timestamp DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListVisits query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query visits for %s: %w", userID, err)
	}
	defer rows.Close()

	var visits []models.VisitRecord
	for rows.Next() {
		v, err := scanVisitRows(rows)
		if err != nil {
			slog.Error("SQLiteStore ListVisits scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		visits = append(visits, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visit rows: %w", err)
	}
	slog.Debug("SQLiteStore ListVisits succeeded", "userID", userID, "count", len(visits))
	return visits, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
