// Package store provides storage backends for patient and visit records.
//
// It includes an in-memory store for tests and development plus SQLite and
// PostgreSQL backends for production. Patient records are upserted by user
// id; visit records are append-only and queried by user id and the compact
// timestamp prefix carried in deep-link tokens.
package store

import (
	"strings"
	"sync"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/visit"
)

// Store defines the persistence operations the conversation layer needs.
// Lookup methods return (nil, nil) when no record exists.
type Store interface {
	FindPatient(userID string) (*models.Patient, error)
	UpsertPatient(p models.Patient) error

	AddVisit(v models.VisitRecord) error
	// FindVisitByPrefix resolves a decoded deep-link (user id, compact
	// timestamp prefix) pair to its visit record.
	FindVisitByPrefix(userID, tsPrefix string) (*models.VisitRecord, error)
	// ListVisits returns the user's visits most-recent-first.
	ListVisits(userID string) ([]models.VisitRecord, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string (file path for SQLite).
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL-style connection strings
// and "sqlite3" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a simple synchronized in-memory store.
type InMemoryStore struct {
	mu       sync.RWMutex
	patients map[string]models.Patient
	visits   []models.VisitRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{patients: make(map[string]models.Patient)}
}

func (s *InMemoryStore) FindPatient(userID string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.patients[userID]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) UpsertPatient(p models.Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.UserID] = p
	return nil
}

func (s *InMemoryStore) AddVisit(v models.VisitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, v)
	return nil
}

func (s *InMemoryStore) FindVisitByPrefix(userID, tsPrefix string) (*models.VisitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.visits {
		v := s.visits[i]
		if v.UserID == userID && strings.HasPrefix(visit.TimestampKey(v.VisitTimestamp), tsPrefix) {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListVisits(userID string) ([]models.VisitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.VisitRecord
	for i := len(s.visits) - 1; i >= 0; i-- {
		if s.visits[i].UserID == userID {
			out = append(out, s.visits[i])
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
