// Package store provides storage backends for patient and visit records.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/visit"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) FindPatient(userID string) (*models.Patient, error) {
	var p models.Patient
	err := s.db.QueryRow(`SELECT user_id, name, age, gender FROM patients WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Name, &p.Age, &p.Gender)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindPatient failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query patient %s: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertPatient(p models.Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO patients (user_id, name, age, gender) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET name = excluded.name, age = excluded.age, gender = excluded.gender`,
		p.UserID, p.Name, p.Age, p.Gender)
	if err != nil {
		slog.Error("PostgresStore UpsertPatient failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to upsert patient %s: %w", p.UserID, err)
	}
	slog.Debug("PostgresStore UpsertPatient succeeded", "userID", p.UserID)
	return nil
}

func (s *PostgresStore) AddVisit(v models.VisitRecord) error {
	payload, err := marshalVisitPayload(v)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO visits (id, user_id, visit_code, visit_timestamp, ts_key, visit_link, payload, diagnosis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.UserID, v.VisitCode, v.VisitTimestamp, visit.TimestampKey(v.VisitTimestamp), v.VisitLink, payload, v.Diagnosis)
	if err != nil {
		slog.Error("PostgresStore AddVisit failed", "error", err, "userID", v.UserID, "visitCode", v.VisitCode)
		return fmt.Errorf("failed to insert visit %s: %w", v.VisitCode, err)
	}
	slog.Debug("PostgresStore AddVisit succeeded", "userID", v.UserID, "visitCode", v.VisitCode)
	return nil
}

func (s *PostgresStore) FindVisitByPrefix(userID, tsPrefix string) (*models.VisitRecord, error) {
	row := s.db.QueryRow(`SELECT id, user_id, visit_code, visit_timestamp, visit_link, payload, diagnosis
		FROM visits WHERE user_id = $1 AND ts_key LIKE $2 || '%' ORDER BY ts_key LIMIT 1`, userID, tsPrefix)
	v, err := scanVisitRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindVisitByPrefix failed", "error", err, "userID", userID, "tsPrefix", tsPrefix)
		return nil, fmt.Errorf("failed to query visit for %s: %w", userID, err)
	}
	return v, nil
}

func (s *PostgresStore) ListVisits(userID string) ([]models.VisitRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, visit_code, visit_timestamp, visit_link, payload, diagnosis
		FROM visits WHERE user_id = $1 ORDER BY visit_timestamp DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListVisits query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query visits for %s: %w", userID, err)
	}
	defer rows.Close()

	var visits []models.VisitRecord
	for rows.Next() {
		v, err := scanVisitRows(rows)
		if err != nil {
			slog.Error("PostgresStore ListVisits scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		visits = append(visits, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visit rows: %w", err)
	}
	slog.Debug("PostgresStore ListVisits succeeded", "userID", userID, "count", len(visits))
	return visits, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
