// Package intake implements the conversation state machine that walks a user
// from first contact through basic info, the symptom checklist, medical
// history, consent and finally the diagnosis pipeline.
package intake

import (
	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/session"
)

// Conversation states. Each incoming message is dispatched on the session's
// current state; every state has one success transition and re-prompts in
// place on unrecognized input.
const (
	StateGettingStarted   session.State = "GETTING_STARTED"
	StateCollectName      session.State = "COLLECT_NAME"
	StateCollectAge       session.State = "COLLECT_AGE"
	StateCollectGender    session.State = "COLLECT_GENDER"
	StateSectionCheck     session.State = "SECTION_CHECK"
	StateSubSymptom       session.State = "SUB_SYMPTOM"
	StateExtraInfo        session.State = "EXTRA_INFO"
	StateConfirmExtraInfo session.State = "CONFIRM_EXTRA_INFO"
	StateAskHistory       session.State = "ASK_MEDICAL_HISTORY"
	StateMedicalHistory   session.State = "MEDICAL_HISTORY"
	StateConsent          session.State = "CONSENT"
	StateViewHistory      session.State = "VIEW_HISTORY"
	StateVisitDetail      session.State = "VISIT_DETAIL"
)

// eligibleCategories returns the history categories to traverse for the
// given gender. The female-specific category is skipped entirely for male
// patients.
func eligibleCategories(gender models.Gender) []models.HistoryCategory {
	out := make([]models.HistoryCategory, 0, len(models.HistoryCategoryOrder))
	for _, cat := range models.HistoryCategoryOrder {
		if cat == models.CategoryFemaleSpecific && gender == models.GenderMale {
			continue
		}
		out = append(out, cat)
	}
	return out
}

// nextCategory returns the category following current in the eligible
// traversal order, or ok=false when current is the last one.
func nextCategory(current models.HistoryCategory, gender models.Gender) (models.HistoryCategory, bool) {
	cats := eligibleCategories(gender)
	for i, cat := range cats {
		if cat == current && i+1 < len(cats) {
			return cats[i+1], true
		}
	}
	return "", false
}
