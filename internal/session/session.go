// Package session provides the per-user conversation context and its
// lifecycle management.
//
// A Context is the single mutable accumulator for one intake-to-diagnosis
// cycle. It is owned by the intake state machine: no other component mutates
// it, and the report formatter only ever reads a frozen Snapshot. A Context
// lives from first contact until cancel, consent denial, or completion.
package session

import (
	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/questions"
)

// State names the current position of a conversation in the intake flow.
// The intake package defines the actual state constants.
type State string

// Context accumulates everything collected during one conversation cycle.
type Context struct {
	UserID string
	State  State

	Patient models.Patient

	// Sections is loaded once by Begin and read-only thereafter.
	Sections []questions.Section

	// SectionResponses records the per-section "has symptoms" answer,
	// append-only during the section-check phase.
	SectionResponses map[string]bool

	// Answers keeps only positive sub-symptom answers, grouped by section
	// title. A missing entry means "not reported", never "answered no".
	Answers map[string][]models.SymptomAnswer

	ExtraInfo string
	// pendingExtraInfo is staged free text awaiting user confirmation.
	pendingExtraInfo string

	MedicalHistory models.MedicalHistory

	// Cursors into the section/symptom and history traversals.
	SectionIndex  int
	SymptomIndex  int
	Category      models.HistoryCategory
	QuestionIndex int

	// SelectedVisit holds the visit being viewed in the history/deep-link
	// flow. It is presentation state, not intake data.
	SelectedVisit *models.VisitRecord
}

// Begin initializes the intake portion of the context with a fresh section
// list and empty answer containers. Demographics and the selected visit are
// left untouched so an existing patient can start a new visit directly.
func (c *Context) Begin(sections []questions.Section) {
	c.Sections = sections
	c.SectionResponses = make(map[string]bool)
	c.Answers = make(map[string][]models.SymptomAnswer)
	c.ExtraInfo = ""
	c.pendingExtraInfo = ""
	c.MedicalHistory = make(models.MedicalHistory)
	c.SectionIndex = 0
	c.SymptomIndex = 0
	c.Category = ""
	c.QuestionIndex = 0
}

// RecordSectionResponse stores the binary "has symptoms in this section"
// answer for the given section title.
func (c *Context) RecordSectionResponse(title string, hasSymptoms bool) {
	if c.SectionResponses == nil {
		c.SectionResponses = make(map[string]bool)
	}
	c.SectionResponses[title] = hasSymptoms
}

// RecordSymptomAnswer appends one positive sub-symptom answer. Negative
// answers must not be passed here; they are simply not recorded.
func (c *Context) RecordSymptomAnswer(section, description string) {
	if c.Answers == nil {
		c.Answers = make(map[string][]models.SymptomAnswer)
	}
	c.Answers[section] = append(c.Answers[section], models.SymptomAnswer{
		Section:     section,
		Description: description,
		Answered:    true,
	})
}

// StageExtraInfo holds free text pending confirmation.
func (c *Context) StageExtraInfo(text string) {
	c.pendingExtraInfo = text
}

// PendingExtraInfo returns the staged, unconfirmed free text.
func (c *Context) PendingExtraInfo() string {
	return c.pendingExtraInfo
}

// ConfirmExtraInfo freezes the staged text into the context.
func (c *Context) ConfirmExtraInfo() {
	c.ExtraInfo = c.pendingExtraInfo
	c.pendingExtraInfo = ""
}

// RecordHistoryAnswer stores a free-text answer at [category][index].
func (c *Context) RecordHistoryAnswer(category models.HistoryCategory, index int, answer string) {
	if c.MedicalHistory == nil {
		c.MedicalHistory = make(models.MedicalHistory)
	}
	if c.MedicalHistory[category] == nil {
		c.MedicalHistory[category] = make(map[int]string)
	}
	c.MedicalHistory[category][index] = answer
}

// CurrentSection returns the section under the section cursor. ok is false
// when the cursor has walked past the last section.
func (c *Context) CurrentSection() (questions.Section, bool) {
	if c.SectionIndex < 0 || c.SectionIndex >= len(c.Sections) {
		return questions.Section{}, false
	}
	return c.Sections[c.SectionIndex], true
}

// RepairSectionCursor resets out-of-range or missing section state to a safe
// default instead of failing. It reports whether a repair was made so the
// caller can log it; the user never sees this.
func (c *Context) RepairSectionCursor(sections []questions.Section) bool {
	repaired := false
	if len(c.Sections) == 0 {
		c.Sections = sections
		repaired = true
	}
	if c.SectionIndex < 0 {
		c.SectionIndex = 0
		c.SymptomIndex = 0
		repaired = true
	}
	if c.SymptomIndex < 0 {
		c.SymptomIndex = 0
		repaired = true
	}
	if c.SectionResponses == nil {
		c.SectionResponses = make(map[string]bool)
		repaired = true
	}
	if c.Answers == nil {
		c.Answers = make(map[string][]models.SymptomAnswer)
		repaired = true
	}
	return repaired
}

// RepairHistoryCursor resets a missing or invalid history cursor to the
// first eligible category. It reports whether a repair was made.
func (c *Context) RepairHistoryCursor() bool {
	repaired := false
	if c.MedicalHistory == nil {
		c.MedicalHistory = make(models.MedicalHistory)
		repaired = true
	}
	if _, ok := questions.HistoryQuestions[c.Category]; !ok {
		c.Category = models.HistoryCategoryOrder[0]
		c.QuestionIndex = 0
		repaired = true
	}
	if c.QuestionIndex < 0 {
		c.QuestionIndex = 0
		repaired = true
	}
	return repaired
}

// Snapshot is an immutable copy of the collected intake data, handed to the
// report formatter and visit builder. Mutating the live Context after
// Freeze does not affect a Snapshot.
type Snapshot struct {
	Patient        models.Patient
	Answers        map[string][]models.SymptomAnswer
	ExtraInfo      string
	MedicalHistory models.MedicalHistory
}

// Freeze produces an immutable Snapshot of the context.
func (c *Context) Freeze() Snapshot {
	answers := make(map[string][]models.SymptomAnswer, len(c.Answers))
	for section, list := range c.Answers {
		cp := make([]models.SymptomAnswer, len(list))
		copy(cp, list)
		answers[section] = cp
	}
	history := make(models.MedicalHistory, len(c.MedicalHistory))
	for cat, entries := range c.MedicalHistory {
		m := make(map[int]string, len(entries))
		for i, v := range entries {
			m[i] = v
		}
		history[cat] = m
	}
	return Snapshot{
		Patient:        c.Patient,
		Answers:        answers,
		ExtraInfo:      c.ExtraInfo,
		MedicalHistory: history,
	}
}

// Reset clears all collected data and returns the context to the start
// state. Used on cancel, consent denial, and terminal transitions.
func (c *Context) Reset(startState State) {
	userID := c.UserID
	*c = Context{UserID: userID, State: startState}
}
