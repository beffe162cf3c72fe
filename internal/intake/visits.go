package intake

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/session"
	"github.com/dragent-dev/dragent/internal/visit"
)

// displayTimeLayout is how visit timestamps are shown to users.
const displayTimeLayout = "2006-01-02 15:04"

// maxHistoryEntries caps the visit history listing.
const maxHistoryEntries = 10

// maxProfileVisits caps the recent visits shown on the profile view.
const maxProfileVisits = 3

// showProfile renders demographics plus a short visit summary and returns
// to the main menu state.
func (m *Machine) showProfile(ctx context.Context, sess *session.Context) error {
	patient, err := m.store.FindPatient(sess.UserID)
	if err != nil {
		slog.Error("Machine.showProfile: patient lookup failed", "error", err, "userID", sess.UserID)
	}
	visits, err := m.store.ListVisits(sess.UserID)
	if err != nil {
		slog.Error("Machine.showProfile: visit listing failed", "error", err, "userID", sess.UserID)
	}

	text := msgNoProfile
	if patient != nil {
		var b strings.Builder
		b.WriteString("👤 اطلاعات پروفایل:\n\n")
		fmt.Fprintf(&b, "نام و نام خانوادگی: %s\n", patient.Name)
		fmt.Fprintf(&b, "سن: %d\n", patient.Age)
		fmt.Fprintf(&b, "جنسیت: %s\n\n", patient.Gender.Label())
		fmt.Fprintf(&b, "📊 تعداد ویزیت‌ها: %d\n", len(visits))
		if len(visits) > 0 {
			b.WriteString("\nآخرین ویزیت‌ها:")
			for i, v := range visits {
				if i >= maxProfileVisits {
					break
				}
				fmt.Fprintf(&b, "\n%d. %s", i+1, v.VisitTimestamp.Format(displayTimeLayout))
			}
		}
		text = b.String()
	}

	sess.State = StateGettingStarted
	return m.transport.SendChoices(ctx, sess.UserID, text, mainMenu)
}

// showVisitHistory lists the user's visits most-recent-first as selectable
// choices.
func (m *Machine) showVisitHistory(ctx context.Context, sess *session.Context) error {
	visits, err := m.store.ListVisits(sess.UserID)
	if err != nil {
		slog.Error("Machine.showVisitHistory: visit listing failed", "error", err, "userID", sess.UserID)
	}
	if len(visits) == 0 {
		sess.State = StateGettingStarted
		return m.transport.SendChoices(ctx, sess.UserID, msgNoVisitHistory, mainMenu)
	}

	choices := make([]string, 0, maxHistoryEntries+1)
	for i, v := range visits {
		if i >= maxHistoryEntries {
			break
		}
		choices = append(choices, fmt.Sprintf("📋 %s | کد: %s", v.VisitTimestamp.Format(displayTimeLayout), v.VisitCode))
	}
	choices = append(choices, BtnBackToMenu)

	sess.State = StateViewHistory
	return m.transport.SendChoices(ctx, sess.UserID, msgChooseVisit, choices)
}

// handleViewHistory resolves a selected visit-history entry back to its
// record via the visit code embedded in the button text.
func (m *Machine) handleViewHistory(ctx context.Context, sess *session.Context, body string) error {
	if body == BtnBackToMenu {
		return m.showMainMenu(ctx, sess)
	}

	const codeMarker = "کد: "
	idx := strings.LastIndex(body, codeMarker)
	if idx < 0 {
		return m.transport.SendText(ctx, sess.UserID, msgInvalidVisit)
	}
	code := strings.TrimSpace(body[idx+len(codeMarker):])

	visits, err := m.store.ListVisits(sess.UserID)
	if err != nil {
		slog.Error("Machine.handleViewHistory: visit listing failed", "error", err, "userID", sess.UserID)
	}
	for i := range visits {
		if visits[i].VisitCode == code {
			sess.SelectedVisit = &visits[i]
			sess.State = StateVisitDetail
			return m.transport.SendChoices(ctx, sess.UserID, msgChooseReport, versionButtons)
		}
	}
	return m.transport.SendChoices(ctx, sess.UserID, msgVisitNotFound, []string{BtnBackToMenu})
}

// handleVisitDetail renders the requested view of the selected visit.
func (m *Machine) handleVisitDetail(ctx context.Context, sess *session.Context, body string) error {
	switch body {
	case BtnBackToVisits:
		return m.showVisitHistory(ctx, sess)
	case BtnBackToMenu:
		return m.showMainMenu(ctx, sess)
	}

	if sess.SelectedVisit == nil {
		sess.State = StateViewHistory
		return m.transport.SendChoices(ctx, sess.UserID, msgVisitUnselected, []string{BtnBackToMenu})
	}

	switch body {
	case BtnDiagnosisView, BtnDiagnosisDetail:
		return m.transport.SendChoices(ctx, sess.UserID, renderDiagnosisReport(*sess.SelectedVisit), []string{BtnBackToVisits})
	case BtnPrescriptionView, BtnRecommendations:
		return m.transport.SendChoices(ctx, sess.UserID, renderPrescription(*sess.SelectedVisit), []string{BtnBackToVisits})
	default:
		return m.transport.SendChoices(ctx, sess.UserID, msgChooseMenuOption, versionButtons)
	}
}

// openVisitLink resolves a deep-link token to a visit record. Any decode or
// lookup failure collapses into a single invalid-link message.
func (m *Machine) openVisitLink(ctx context.Context, sess *session.Context, arg string) error {
	token := strings.TrimPrefix(arg, "visit_")
	userID, tsPrefix, err := visit.DecodeToken(token)
	if err != nil {
		slog.Warn("Machine.openVisitLink: token decode failed", "error", err, "from", sess.UserID)
		return m.invalidVisitLink(ctx, sess)
	}

	record, err := m.store.FindVisitByPrefix(userID, tsPrefix)
	if err != nil {
		slog.Error("Machine.openVisitLink: visit lookup failed", "error", err, "userID", userID)
		return m.invalidVisitLink(ctx, sess)
	}
	if record == nil {
		slog.Warn("Machine.openVisitLink: no visit for token", "userID", userID, "tsPrefix", tsPrefix)
		return m.invalidVisitLink(ctx, sess)
	}

	sess.SelectedVisit = record
	sess.State = StateVisitDetail
	return m.transport.SendChoices(ctx, sess.UserID, renderVisitInfo(*record),
		[]string{BtnDiagnosisDetail, BtnRecommendations, BtnBackToMenu})
}

func (m *Machine) invalidVisitLink(ctx context.Context, sess *session.Context) error {
	sess.State = StateGettingStarted
	return m.transport.SendChoices(ctx, sess.UserID, msgInvalidVisitLink, []string{BtnBackToMenu})
}

// renderVisitInfo is the deep-link landing text for a visit.
func renderVisitInfo(v models.VisitRecord) string {
	var b strings.Builder
	b.WriteString("📋 اطلاعات ویزیت پزشکی\n")
	fmt.Fprintf(&b, "🔖 کد ویزیت: %s\n", v.VisitCode)
	fmt.Fprintf(&b, "📅 تاریخ مراجعه: %s\n\n", v.VisitTimestamp.Format(displayTimeLayout))
	fmt.Fprintf(&b, "👤 بیمار: %s\n", v.Patient.Name)
	fmt.Fprintf(&b, "📅 سن: %d\n", v.Patient.Age)
	fmt.Fprintf(&b, "⚧ جنسیت: %s\n\n", v.Patient.Gender.Label())
	if len(v.MedicalHistory) > 0 {
		b.WriteString("📚 سوابق پزشکی ثبت شده است\n")
	}
	if len(v.Answers) > 0 {
		b.WriteString("🔍 علائم اصلی ثبت شده است\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderDiagnosisReport is the full "diagnosis version" of a visit.
func renderDiagnosisReport(v models.VisitRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 گزارش تشخیص (کد ویزیت: %s)\n", v.VisitCode)
	fmt.Fprintf(&b, "📅 تاریخ ویزیت: %s\n\n", v.VisitTimestamp.Format(displayTimeLayout))

	b.WriteString("🔍 علائم گزارش شده:\n")
	if v.ExtraInfo != "" {
		fmt.Fprintf(&b, "\n💭 توضیحات تکمیلی:\n%s\n", v.ExtraInfo)
	}
	var symptoms []string
	for _, answers := range v.Answers {
		for _, a := range answers {
			symptoms = append(symptoms, a.Description)
		}
	}
	if len(symptoms) == 0 {
		b.WriteString("\n🔹 گزارش علائم: هیچ علامتی گزارش نشده است.\n")
	} else {
		sort.Strings(symptoms)
		b.WriteString("\n🔹 گزارش علائم:\n")
		for _, s := range symptoms {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}

	fmt.Fprintf(&b, "\n👨‍⚕️ تشخیص هوش مصنوعی:\n%s\n\n", v.Diagnosis)
	if v.VisitLink != "" {
		fmt.Fprintf(&b, "🔗 لینک ویزیت:\n%s\n\n", v.VisitLink)
	}
	b.WriteString("⚠️ یادآوری: این تشخیص صرفاً جنبه راهنمایی دارد و جایگزین مراجعه به پزشک نیست.")
	return b.String()
}

// renderPrescription is the "prescription version": only the recommendation
// blocks of the diagnosis.
func renderPrescription(v models.VisitRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👨‍⚕️ نسخه تجویزی (کد ویزیت: %s)\n", v.VisitCode)
	fmt.Fprintf(&b, "📅 تاریخ ویزیت: %s\n\n", v.VisitTimestamp.Format(displayTimeLayout))

	recs := visit.RecommendationsSection(v.Diagnosis)
	if len(recs) == 0 {
		b.WriteString("❌ توصیه‌ای در گزارش تشخیص یافت نشد.\n")
	} else {
		b.WriteString("💊 توصیه‌های درمانی:\n")
		for i, rec := range recs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
	}

	b.WriteString("\n⚠️ توجه:\n" +
		"• این توصیه‌ها عمومی هستند\n" +
		"• برای استفاده از هر دارو با پزشک مشورت کنید\n" +
		"• در صورت تشدید علائم به پزشک مراجعه کنید")
	return b.String()
}
