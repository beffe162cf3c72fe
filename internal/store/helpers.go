package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dragent-dev/dragent/internal/models"
)

// visitPayload is the JSON-serialized portion of a visit record: everything
// that does not need its own queryable column.
type visitPayload struct {
	Patient        models.Patient                    `json:"patient"`
	Answers        map[string][]models.SymptomAnswer `json:"answers"`
	ExtraInfo      string                            `json:"extra_info"`
	MedicalHistory models.MedicalHistory             `json:"medical_history"`
}

func marshalVisitPayload(v models.VisitRecord) (string, error) {
	b, err := json.Marshal(visitPayload{
		Patient:        v.Patient,
		Answers:        v.Answers,
		ExtraInfo:      v.ExtraInfo,
		MedicalHistory: v.MedicalHistory,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal visit payload: %w", err)
	}
	return string(b), nil
}

func unmarshalVisitPayload(data string, v *models.VisitRecord) error {
	var p visitPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return fmt.Errorf("failed to unmarshal visit payload: %w", err)
	}
	v.Patient = p.Patient
	v.Answers = p.Answers
	v.ExtraInfo = p.ExtraInfo
	v.MedicalHistory = p.MedicalHistory
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so visit scanning is shared
// between single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(sc rowScanner) (*models.VisitRecord, error) {
	var v models.VisitRecord
	var payload string
	if err := sc.Scan(&v.ID, &v.UserID, &v.VisitCode, &v.VisitTimestamp, &v.VisitLink, &payload, &v.Diagnosis); err != nil {
		return nil, err
	}
	if err := unmarshalVisitPayload(payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVisitRow(row *sql.Row) (*models.VisitRecord, error) {
	return scanVisit(row)
}

func scanVisitRows(rows *sql.Rows) (*models.VisitRecord, error) {
	return scanVisit(rows)
}
