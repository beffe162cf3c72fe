package session

import (
	"testing"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/questions"
)

func testSections() []questions.Section {
	return []questions.Section{
		{ID: 1, Title: "سر و گردن", Symptoms: []questions.Symptom{
			{Description: "سردرد دارید؟"},
			{Description: "سرگیجه دارید؟"},
		}},
		{ID: 2, Title: "قلب", Symptoms: []questions.Symptom{
			{Description: "تپش قلب دارید؟"},
		}},
	}
}

func TestBeginResetsIntakeState(t *testing.T) {
	c := &Context{UserID: "u1", State: "X"}
	c.RecordSymptomAnswer("قلب", "تپش قلب دارید؟")
	c.SectionIndex = 5

	c.Begin(testSections())

	if len(c.Answers) != 0 {
		t.Errorf("Answers not cleared: %v", c.Answers)
	}
	if c.SectionIndex != 0 || c.SymptomIndex != 0 {
		t.Errorf("cursors not reset: %d/%d", c.SectionIndex, c.SymptomIndex)
	}
	if len(c.Sections) != 2 {
		t.Errorf("sections not loaded, got %d", len(c.Sections))
	}
}

func TestRecordSymptomAnswerGroupsBySection(t *testing.T) {
	c := &Context{}
	c.Begin(testSections())
	c.RecordSymptomAnswer("سر و گردن", "سردرد دارید؟")
	c.RecordSymptomAnswer("سر و گردن", "سرگیجه دارید؟")
	c.RecordSymptomAnswer("قلب", "تپش قلب دارید؟")

	if got := len(c.Answers["سر و گردن"]); got != 2 {
		t.Errorf("expected 2 answers for first section, got %d", got)
	}
	if got := len(c.Answers["قلب"]); got != 1 {
		t.Errorf("expected 1 answer for second section, got %d", got)
	}
	for _, ans := range c.Answers["سر و گردن"] {
		if !ans.Answered {
			t.Errorf("recorded answer not marked positive: %+v", ans)
		}
	}
}

func TestExtraInfoStaging(t *testing.T) {
	c := &Context{}
	c.Begin(testSections())

	c.StageExtraInfo("درد از دیروز شروع شده")
	if c.ExtraInfo != "" {
		t.Errorf("staged text leaked into ExtraInfo: %q", c.ExtraInfo)
	}
	if c.PendingExtraInfo() != "درد از دیروز شروع شده" {
		t.Errorf("pending text = %q", c.PendingExtraInfo())
	}

	// Restaging replaces, confirming freezes.
	c.StageExtraInfo("درد از امروز شروع شده")
	c.ConfirmExtraInfo()
	if c.ExtraInfo != "درد از امروز شروع شده" {
		t.Errorf("confirmed text = %q", c.ExtraInfo)
	}
	if c.PendingExtraInfo() != "" {
		t.Errorf("pending text not cleared: %q", c.PendingExtraInfo())
	}
}

func TestFreezeIsDeepCopy(t *testing.T) {
	c := &Context{Patient: models.Patient{UserID: "u1", Name: "علی", Age: 30, Gender: models.GenderMale}}
	c.Begin(testSections())
	c.RecordSymptomAnswer("قلب", "تپش قلب دارید؟")
	c.RecordHistoryAnswer(models.CategoryLifestyle, 0, "سیگار نمی‌کشم")
	c.StageExtraInfo("توضیح")
	c.ConfirmExtraInfo()

	snap := c.Freeze()

	// Mutations after Freeze must not show up in the snapshot.
	c.RecordSymptomAnswer("قلب", "درد قفسه سینه دارید؟")
	c.RecordHistoryAnswer(models.CategoryLifestyle, 1, "ورزش می‌کنم")
	c.Answers["قلب"][0].Description = "changed"

	if got := len(snap.Answers["قلب"]); got != 1 {
		t.Errorf("snapshot answers mutated, len = %d", got)
	}
	if snap.Answers["قلب"][0].Description != "تپش قلب دارید؟" {
		t.Errorf("snapshot answer mutated: %q", snap.Answers["قلب"][0].Description)
	}
	if got := len(snap.MedicalHistory[models.CategoryLifestyle]); got != 1 {
		t.Errorf("snapshot history mutated, len = %d", got)
	}
	if snap.ExtraInfo != "توضیح" {
		t.Errorf("snapshot extra info = %q", snap.ExtraInfo)
	}
}

func TestResetKeepsUserID(t *testing.T) {
	c := &Context{UserID: "u1", State: "X", Patient: models.Patient{Name: "علی"}}
	c.Begin(testSections())
	c.RecordSymptomAnswer("قلب", "تپش قلب دارید؟")

	c.Reset("START")

	if c.UserID != "u1" {
		t.Errorf("UserID lost on reset: %q", c.UserID)
	}
	if c.State != "START" {
		t.Errorf("State = %q", c.State)
	}
	if c.Patient.Name != "" || len(c.Answers) != 0 {
		t.Error("collected data survived reset")
	}
}

func TestRepairSectionCursor(t *testing.T) {
	sections := testSections()

	c := &Context{SectionIndex: -3, SymptomIndex: -1}
	if !c.RepairSectionCursor(sections) {
		t.Error("expected a repair to be reported")
	}
	if c.SectionIndex != 0 || c.SymptomIndex != 0 {
		t.Errorf("cursors not repaired: %d/%d", c.SectionIndex, c.SymptomIndex)
	}
	if c.SectionResponses == nil || c.Answers == nil {
		t.Error("answer containers not initialized")
	}

	// A healthy context reports no repair.
	h := &Context{}
	h.Begin(sections)
	if h.RepairSectionCursor(sections) {
		t.Error("unexpected repair on healthy context")
	}
}

func TestRepairHistoryCursor(t *testing.T) {
	c := &Context{Category: "bogus", QuestionIndex: -2}
	if !c.RepairHistoryCursor() {
		t.Error("expected a repair to be reported")
	}
	if c.Category != models.HistoryCategoryOrder[0] {
		t.Errorf("category not repaired: %q", c.Category)
	}
	if c.QuestionIndex != 0 {
		t.Errorf("question index not repaired: %d", c.QuestionIndex)
	}
}

func TestCurrentSectionPastEnd(t *testing.T) {
	c := &Context{}
	c.Begin(testSections())
	c.SectionIndex = 2
	if _, ok := c.CurrentSection(); ok {
		t.Error("expected ok=false past the last section")
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager("START")

	a := m.GetOrCreate("u1")
	if a.State != "START" || a.UserID != "u1" {
		t.Errorf("new context = %+v", a)
	}
	if b := m.GetOrCreate("u1"); b != a {
		t.Error("GetOrCreate returned a different context for same user")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d", m.Count())
	}

	if _, ok := m.Get("u2"); ok {
		t.Error("Get reported a context that was never created")
	}
}

func TestManagerReset(t *testing.T) {
	m := NewManager("START")
	c := m.GetOrCreate("u1")
	c.State = "DEEP"
	c.Patient.Name = "علی"

	m.Reset("u1")

	if c.State != "START" || c.Patient.Name != "" {
		t.Errorf("context not reset: %+v", c)
	}
	// Resetting an unknown user is a no-op.
	m.Reset("u2")
	if m.Count() != 1 {
		t.Errorf("Count = %d", m.Count())
	}
}
