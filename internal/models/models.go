// Package models defines the core data structures for Dr.Agent.
//
// It includes the patient record, visit record, and medical-history types
// shared across the intake, report, visit, and store modules.
package models

import (
	"errors"
	"time"
)

// Gender is a closed two-value enum. Anything else is rejected during intake.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Persian labels shown on the gender choice buttons.
const (
	GenderLabelMale   = "مرد"
	GenderLabelFemale = "زن"
)

// Validation constants for patient data.
const (
	// MinPatientAge is the lowest accepted age value (inclusive).
	MinPatientAge = 0
	// MaxPatientAge is the highest accepted age value (inclusive).
	MaxPatientAge = 120
)

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID      = errors.New("user id cannot be empty")
	ErrEmptyPatientName = errors.New("patient name cannot be empty")
	ErrAgeOutOfRange    = errors.New("age must be between 0 and 120")
	ErrInvalidGender    = errors.New("gender must be male or female")
	ErrPatientNotFound  = errors.New("patient record not found")
	ErrVisitNotFound    = errors.New("visit record not found")
	ErrInvalidVisitLink = errors.New("invalid or expired visit link")
)

// ParseGender maps a Persian button label to a Gender value.
func ParseGender(label string) (Gender, error) {
	switch label {
	case GenderLabelMale:
		return GenderMale, nil
	case GenderLabelFemale:
		return GenderFemale, nil
	default:
		return "", ErrInvalidGender
	}
}

// Label returns the Persian button label for a Gender value.
func (g Gender) Label() string {
	if g == GenderFemale {
		return GenderLabelFemale
	}
	return GenderLabelMale
}

// IsValid reports whether g is one of the two accepted values.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// Patient holds the demographic record collected during basic-info intake.
// It is keyed by the stable transport user identifier and upserted once the
// gender answer completes the basic-info sequence.
type Patient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
}

// Validate performs field validation on a Patient record.
func (p *Patient) Validate() error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	if p.Name == "" {
		return ErrEmptyPatientName
	}
	if p.Age < MinPatientAge || p.Age > MaxPatientAge {
		return ErrAgeOutOfRange
	}
	if !p.Gender.IsValid() {
		return ErrInvalidGender
	}
	return nil
}

// SymptomAnswer is one positively answered sub-symptom question. Negative
// answers are never recorded: absence means "not reported", not "answered no".
type SymptomAnswer struct {
	Section     string `json:"section"`
	Description string `json:"description"`
	Answered    bool   `json:"answered"`
}

// HistoryCategory identifies one of the seven fixed medical-history groupings.
type HistoryCategory string

const (
	CategoryMedicalHistory  HistoryCategory = "medical_history"
	CategoryCurrentSymptoms HistoryCategory = "current_symptoms"
	CategoryPhysicalExam    HistoryCategory = "physical_exam"
	CategoryLifestyle       HistoryCategory = "lifestyle"
	CategoryFamilyHistory   HistoryCategory = "family_history"
	CategoryFemaleSpecific  HistoryCategory = "female_specific"
	CategoryOtherInfo       HistoryCategory = "other_info"
)

// HistoryCategoryOrder is the fixed traversal order of the history loop.
// CategoryFemaleSpecific is skipped entirely when the patient is male.
var HistoryCategoryOrder = []HistoryCategory{
	CategoryMedicalHistory,
	CategoryCurrentSymptoms,
	CategoryPhysicalExam,
	CategoryLifestyle,
	CategoryFamilyHistory,
	CategoryFemaleSpecific,
	CategoryOtherInfo,
}

// MedicalHistory maps category -> question index -> free-text answer.
type MedicalHistory map[HistoryCategory]map[int]string

// NoneAnswerTokens are the literal "nothing to report" answers that are
// excluded from formatted reports.
var NoneAnswerTokens = []string{"-", "ندارم"}

// IsNoneAnswer reports whether a history answer carries no information.
func IsNoneAnswer(answer string) bool {
	for _, tok := range NoneAnswerTokens {
		if answer == tok {
			return true
		}
	}
	return answer == ""
}

// VisitRecord is the immutable artifact of one completed intake and
// diagnosis cycle. Records are only ever appended to a store.
type VisitRecord struct {
	ID             string                     `json:"id"`
	UserID         string                     `json:"user_id"`
	VisitCode      string                     `json:"visit_code"`
	VisitTimestamp time.Time                  `json:"visit_timestamp"`
	VisitLink      string                     `json:"visit_link"`
	Patient        Patient                    `json:"patient"`
	Answers        map[string][]SymptomAnswer `json:"answers"`
	ExtraInfo      string                     `json:"extra_info"`
	MedicalHistory MedicalHistory             `json:"medical_history"`
	Diagnosis      string                     `json:"diagnosis"`
}

// Response represents an incoming message from a user on any transport.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
