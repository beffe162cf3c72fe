// Package report renders a frozen session snapshot into the natural-language
// medical report submitted to the completion endpoint.
//
// Format is a pure function: the same snapshot always produces the same
// text. Map-backed fields are emitted in a fixed order to keep that true.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/questions"
	"github.com/dragent-dev/dragent/internal/session"
)

// SystemInstruction is appended verbatim to every formatted report. It
// directs the downstream model through triage, differential diagnosis,
// urgency assessment, and context-safe recommendations.
const SystemInstruction = `You are an AI medical assistant. Analyze patient symptoms & context (age, gender, pregnancy, hypertension, diabetes, allergies) using the following steps:
Symptom Triaging:
Identify symptom patterns, duration, and red flags (e.g., chest pain, confusion, high fever).
Categorize disease state: acute/chronic/infectious.
Differential Diagnosis:

List 3–5 likely conditions (prioritize prevalence & risk factors).
Urgency Assessment:

Low: Mild/moderate, no red flags.
Medium: Progressive/worsening symptoms.
High: Presence of red flags (e.g., shortness of breath, loss of consciousness).
Context-Safe Recommendations:

Non-drug measures: hydration, rest, cold compress.
Contraindications: Aspirin in children <12; metformin in renal failure.
Immediate Actions:

ER referral for high urgency plus safety-net advice.

Instruction:
Respond in Persian using a professional, clear, and concise tone.
Always remind that the information is for informational purposes only and to consult a healthcare professional for diagnosis and treatment.`

const (
	noSymptomsMarker = "هیچ علامتی گزارش نشده است"
	noExtraInfo      = "بدون توضیحات اضافی"
)

// Format renders the report: demographics header, positive symptoms grouped
// by section, the free-text block, and the medical-history block, followed
// by the fixed system instruction.
func Format(snap session.Snapshot) string {
	var b strings.Builder

	b.WriteString("بیمار جدید با مشخصات زیر:\n\n")
	b.WriteString("👤 اطلاعات پایه:\n")
	fmt.Fprintf(&b, "نام: %s\n", snap.Patient.Name)
	fmt.Fprintf(&b, "سن: %d\n", snap.Patient.Age)
	fmt.Fprintf(&b, "جنسیت: %s\n\n", snap.Patient.Gender.Label())

	writeSymptoms(&b, snap.Answers)

	b.WriteString("\n💭 توضیحات تکمیلی بیمار:\n")
	if snap.ExtraInfo != "" {
		b.WriteString(snap.ExtraInfo)
	} else {
		b.WriteString(noExtraInfo)
	}
	b.WriteString("\n")

	writeHistory(&b, snap.MedicalHistory)

	b.WriteString("\n\n")
	b.WriteString(SystemInstruction)
	b.WriteString("\n")
	return b.String()
}

// writeSymptoms emits positive answers grouped by section in section title
// order. Sections without positive answers are omitted.
func writeSymptoms(b *strings.Builder, answers map[string][]models.SymptomAnswer) {
	total := 0
	for _, list := range answers {
		total += len(list)
	}
	if total == 0 {
		fmt.Fprintf(b, "🔍 علائم گزارش شده: %s.\n", noSymptomsMarker)
		return
	}

	b.WriteString("🔍 علائم گزارش شده:\n")
	titles := make([]string, 0, len(answers))
	for title, list := range answers {
		if len(list) > 0 {
			titles = append(titles, title)
		}
	}
	sort.Strings(titles)
	for _, title := range titles {
		fmt.Fprintf(b, "\n▫️ %s:\n", title)
		for _, ans := range answers[title] {
			fmt.Fprintf(b, "• %s\n", ans.Description)
		}
	}
}

// writeHistory emits the medical-history block grouped by category in the
// fixed category order. Answers equal to the literal "none" tokens are
// excluded; categories left with no informative answers are omitted.
func writeHistory(b *strings.Builder, history models.MedicalHistory) {
	if len(history) == 0 {
		return
	}
	b.WriteString("\n📚 سوابق پزشکی:\n")
	for _, cat := range models.HistoryCategoryOrder {
		entries, ok := history[cat]
		if !ok || len(entries) == 0 {
			continue
		}
		lines := make([]string, 0, len(entries))
		indices := make([]int, 0, len(entries))
		for i := range entries {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			if answer := entries[i]; !models.IsNoneAnswer(answer) {
				lines = append(lines, answer)
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(b, "\n▫️ %s:\n", questions.CategoryNames[cat])
		for _, line := range lines {
			fmt.Fprintf(b, "• %s\n", line)
		}
	}
}

// NoSymptomsMarker exposes the "no symptoms reported" marker for summary
// texts and tests.
func NoSymptomsMarker() string {
	return noSymptomsMarker
}
