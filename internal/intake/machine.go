package intake

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dragent-dev/dragent/internal/genai"
	"github.com/dragent-dev/dragent/internal/messaging"
	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/questions"
	"github.com/dragent-dev/dragent/internal/report"
	"github.com/dragent-dev/dragent/internal/session"
	"github.com/dragent-dev/dragent/internal/store"
	"github.com/dragent-dev/dragent/internal/visit"
)

// Completer abstracts the resilient completion client.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Exporter appends a human-readable log entry for a persisted visit.
type Exporter interface {
	Append(record models.VisitRecord) error
}

// Config carries the collaborators the state machine is wired to.
type Config struct {
	Store       store.Store
	Sections    []questions.Section
	Transport   messaging.Service
	Completer   Completer
	Exporter    Exporter // optional
	BotUsername string
}

// Machine drives the intake conversation. One Machine serves all users;
// per-user state lives in the session manager and each user's messages are
// delivered sequentially by the router, so no handler runs concurrently for
// the same session.
type Machine struct {
	sessions    *session.Manager
	store       store.Store
	sections    []questions.Section
	transport   messaging.Service
	ai          Completer
	exporter    Exporter
	botUsername string

	// clock is swapped in tests for deterministic visit codes.
	clock func() time.Time
}

// NewMachine creates the state machine from its configuration.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		sessions:    session.NewManager(StateGettingStarted),
		store:       cfg.Store,
		sections:    cfg.Sections,
		transport:   cfg.Transport,
		ai:          cfg.Completer,
		exporter:    cfg.Exporter,
		botUsername: cfg.BotUsername,
		clock:       time.Now,
	}
}

// Sessions exposes the session manager, mainly for inspection in tests and
// operational counters.
func (m *Machine) Sessions() *session.Manager {
	return m.sessions
}

var (
	yesNoButtons   = []string{BtnYes, BtnNo}
	yesNoWords     = []string{BtnYesWord, BtnNoWord}
	genderButtons  = []string{models.GenderLabelMale, models.GenderLabelFemale}
	confirmButtons = []string{BtnConfirmInfo, BtnEditInfo}
	consentButtons = []string{BtnConsentYes, BtnConsentNo}
	versionButtons = []string{BtnDiagnosisView, BtnPrescriptionView, BtnBackToVisits}
)

// HandleMessage dispatches one incoming message on the sender's current
// state. It implements messaging.Handler.
func (m *Machine) HandleMessage(ctx context.Context, from, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	sess := m.sessions.GetOrCreate(from)
	slog.Debug("Machine.HandleMessage dispatching", "from", from, "state", sess.State, "body_length", len(body))

	// Cancel is honored in every state: the context empties and the cycle
	// ends.
	if body == "/cancel" || body == "لغو" {
		sess.Reset(StateGettingStarted)
		return m.transport.SendText(ctx, from, msgCancelled)
	}

	if strings.HasPrefix(body, "/start") {
		return m.handleStart(ctx, sess, body)
	}

	switch sess.State {
	case StateGettingStarted:
		return m.handleGettingStarted(ctx, sess, body)
	case StateCollectName:
		return m.handleCollectName(ctx, sess, body)
	case StateCollectAge:
		return m.handleCollectAge(ctx, sess, body)
	case StateCollectGender:
		return m.handleCollectGender(ctx, sess, body)
	case StateSectionCheck:
		return m.handleSectionCheck(ctx, sess, body)
	case StateSubSymptom:
		return m.handleSubSymptom(ctx, sess, body)
	case StateExtraInfo:
		return m.handleExtraInfo(ctx, sess, body)
	case StateConfirmExtraInfo:
		return m.handleConfirmExtraInfo(ctx, sess, body)
	case StateAskHistory:
		return m.handleAskHistory(ctx, sess, body)
	case StateMedicalHistory:
		return m.handleMedicalHistory(ctx, sess, body)
	case StateConsent:
		return m.handleConsent(ctx, sess, body)
	case StateViewHistory:
		return m.handleViewHistory(ctx, sess, body)
	case StateVisitDetail:
		return m.handleVisitDetail(ctx, sess, body)
	default:
		slog.Warn("Machine.HandleMessage: unknown state, resetting", "from", from, "state", sess.State)
		sess.Reset(StateGettingStarted)
		return m.showMainMenu(ctx, sess)
	}
}

// handleStart processes the /start command, including visit deep links of
// the form "/start visit_<token>".
func (m *Machine) handleStart(ctx context.Context, sess *session.Context, body string) error {
	fields := strings.Fields(body)
	if len(fields) > 1 && strings.HasPrefix(fields[1], "visit_") {
		return m.openVisitLink(ctx, sess, fields[1])
	}
	sess.State = StateGettingStarted
	return m.transport.SendChoices(ctx, sess.UserID, msgWelcome, mainMenu)
}

func (m *Machine) showMainMenu(ctx context.Context, sess *session.Context) error {
	sess.State = StateGettingStarted
	return m.transport.SendChoices(ctx, sess.UserID, msgWelcome, mainMenu)
}

func (m *Machine) handleGettingStarted(ctx context.Context, sess *session.Context, choice string) error {
	switch choice {
	case BtnViewProfile:
		return m.showProfile(ctx, sess)
	case BtnVisitHistory:
		return m.showVisitHistory(ctx, sess)
	case BtnNewVisit:
		return m.startVisit(ctx, sess)
	case BtnBackToMenu:
		return m.showMainMenu(ctx, sess)
	default:
		return m.transport.SendChoices(ctx, sess.UserID, msgChooseMenuOption, mainMenu)
	}
}

// startVisit begins a new intake cycle. A returning patient skips straight
// to the symptom walk; a new one is asked for demographics first.
func (m *Machine) startVisit(ctx context.Context, sess *session.Context) error {
	patient, err := m.store.FindPatient(sess.UserID)
	if err != nil {
		slog.Error("Machine.startVisit: patient lookup failed", "error", err, "userID", sess.UserID)
	}
	if patient != nil {
		sess.Patient = *patient
		return m.enterSectionCheck(ctx, sess)
	}
	sess.State = StateCollectName
	return m.transport.SendText(ctx, sess.UserID, msgAskName)
}

func (m *Machine) handleCollectName(ctx context.Context, sess *session.Context, body string) error {
	sess.Patient.UserID = sess.UserID
	sess.Patient.Name = body
	sess.State = StateCollectAge
	return m.transport.SendText(ctx, sess.UserID, msgAskAge)
}

// normalizeDigits maps Persian and Arabic-Indic digits to ASCII so numeric
// answers typed on a Persian keyboard parse.
func normalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		}
		return r
	}, s)
}

func (m *Machine) handleCollectAge(ctx context.Context, sess *session.Context, body string) error {
	age, err := strconv.Atoi(normalizeDigits(strings.TrimSpace(body)))
	if err != nil {
		return m.transport.SendText(ctx, sess.UserID, msgAgeNotNumber)
	}
	if age < models.MinPatientAge || age > models.MaxPatientAge {
		return m.transport.SendText(ctx, sess.UserID, msgAgeOutOfRange)
	}
	sess.Patient.Age = age
	sess.State = StateCollectGender
	return m.transport.SendChoices(ctx, sess.UserID, msgAskGender, genderButtons)
}

func (m *Machine) handleCollectGender(ctx context.Context, sess *session.Context, body string) error {
	gender, err := models.ParseGender(body)
	if err != nil {
		return m.transport.SendChoices(ctx, sess.UserID, msgInvalidGender, genderButtons)
	}
	sess.Patient.Gender = gender

	// A failed upsert degrades to an unsaved profile; the visit continues.
	if err := m.store.UpsertPatient(sess.Patient); err != nil {
		slog.Error("Machine.handleCollectGender: patient upsert failed", "error", err, "userID", sess.UserID)
	}

	summary := fmt.Sprintf(
		"✅ اطلاعات پایه شما با موفقیت ثبت شد:\n\n"+
			"👤 نام و نام خانوادگی: %s\n"+
			"📅 سن: %d\n"+
			"⚧ جنسیت: %s\n\n"+
			"🏥 معاینه را شروع می‌کنیم...",
		sess.Patient.Name, sess.Patient.Age, sess.Patient.Gender.Label())
	if err := m.transport.SendText(ctx, sess.UserID, summary); err != nil {
		return err
	}
	return m.enterSectionCheck(ctx, sess)
}

// enterSectionCheck is the single entry point into the symptom walk, shared
// by every path that starts or resumes it.
func (m *Machine) enterSectionCheck(ctx context.Context, sess *session.Context) error {
	sess.Begin(m.sections)
	if err := m.transport.SendText(ctx, sess.UserID, msgSectionGuide); err != nil {
		return err
	}
	return m.promptSection(ctx, sess)
}

// promptSection issues the "any symptoms in this section?" question for the
// section under the cursor, or completes the walk when the cursor has
// passed the last section.
func (m *Machine) promptSection(ctx context.Context, sess *session.Context) error {
	if sess.RepairSectionCursor(m.sections) {
		slog.Warn("Machine.promptSection: repaired section cursor", "userID", sess.UserID)
	}
	section, ok := sess.CurrentSection()
	if !ok {
		return m.completeSections(ctx, sess)
	}
	sess.State = StateSectionCheck
	text := fmt.Sprintf("🔍 بخش %d/%d:\n%s\n\nآیا در این بخش علائمی دارید؟",
		sess.SectionIndex+1, len(sess.Sections), section.Title)
	return m.transport.SendChoices(ctx, sess.UserID, text, yesNoButtons)
}

func (m *Machine) handleSectionCheck(ctx context.Context, sess *session.Context, body string) error {
	if body != BtnYes && body != BtnNo {
		return m.transport.SendChoices(ctx, sess.UserID, msgUseYesNoButtons, yesNoButtons)
	}
	if sess.RepairSectionCursor(m.sections) {
		slog.Warn("Machine.handleSectionCheck: repaired section cursor", "userID", sess.UserID)
	}
	section, ok := sess.CurrentSection()
	if !ok {
		return m.completeSections(ctx, sess)
	}

	sess.RecordSectionResponse(section.Title, body == BtnYes)

	if body == BtnYes && len(section.Symptoms) > 0 {
		sess.SymptomIndex = 0
		return m.promptSymptom(ctx, sess)
	}

	// A section with zero symptom items advances even on "yes": there is
	// nothing to ask.
	sess.SectionIndex++
	sess.SymptomIndex = 0
	return m.promptSection(ctx, sess)
}

// promptSymptom asks the sub-symptom question under the symptom cursor,
// rolling over to the next section when the current one is exhausted.
func (m *Machine) promptSymptom(ctx context.Context, sess *session.Context) error {
	section, ok := sess.CurrentSection()
	if !ok {
		return m.completeSections(ctx, sess)
	}
	if sess.SymptomIndex >= len(section.Symptoms) {
		sess.SectionIndex++
		sess.SymptomIndex = 0
		return m.promptSection(ctx, sess)
	}
	sess.State = StateSubSymptom
	symptom := section.Symptoms[sess.SymptomIndex]
	text := fmt.Sprintf("🔹 %s\nسؤال %d/%d:\n\n🔍 %s",
		section.Title, sess.SymptomIndex+1, len(section.Symptoms), symptom.Description)
	return m.transport.SendChoices(ctx, sess.UserID, text, yesNoButtons)
}

func (m *Machine) handleSubSymptom(ctx context.Context, sess *session.Context, body string) error {
	if body != BtnYes && body != BtnNo {
		return m.transport.SendChoices(ctx, sess.UserID, msgUseYesNoButtons, yesNoButtons)
	}
	if sess.RepairSectionCursor(m.sections) {
		slog.Warn("Machine.handleSubSymptom: repaired section cursor", "userID", sess.UserID)
	}
	section, ok := sess.CurrentSection()
	if !ok {
		return m.completeSections(ctx, sess)
	}
	if sess.SymptomIndex >= len(section.Symptoms) {
		sess.SectionIndex++
		sess.SymptomIndex = 0
		return m.promptSection(ctx, sess)
	}

	// Only positive answers are recorded; absence means "not reported".
	if body == BtnYes {
		sess.RecordSymptomAnswer(section.Title, section.Symptoms[sess.SymptomIndex].Description)
	}
	sess.SymptomIndex++
	return m.promptSymptom(ctx, sess)
}

// completeSections summarizes the positive answers and moves on to the
// free-text stage.
func (m *Machine) completeSections(ctx context.Context, sess *session.Context) error {
	var b strings.Builder
	b.WriteString(msgSectionsComplete)

	if len(sess.Answers) == 0 {
		fmt.Fprintf(&b, "🔹 گزارش علائم: %s.\n\n", report.NoSymptomsMarker())
	} else {
		titles := make([]string, 0, len(sess.Answers))
		for title := range sess.Answers {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		for _, title := range titles {
			fmt.Fprintf(&b, "🔹 %s:\n", title)
			for _, answer := range sess.Answers[title] {
				fmt.Fprintf(&b, "  • %s\n", answer.Description)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(msgAskExtraInfo)
	sess.State = StateExtraInfo
	return m.transport.SendText(ctx, sess.UserID, b.String())
}

func (m *Machine) handleExtraInfo(ctx context.Context, sess *session.Context, body string) error {
	sess.StageExtraInfo(body)
	sess.State = StateConfirmExtraInfo
	text := fmt.Sprintf("📝 اطلاعات وارد شده:\n\n%s\n\nآیا این اطلاعات را تأیید می‌کنید؟", body)
	return m.transport.SendChoices(ctx, sess.UserID, text, confirmButtons)
}

func (m *Machine) handleConfirmExtraInfo(ctx context.Context, sess *session.Context, body string) error {
	switch body {
	case BtnEditInfo:
		sess.State = StateExtraInfo
		return m.transport.SendText(ctx, sess.UserID, msgReenterExtraInfo)
	case BtnConfirmInfo:
		sess.ConfirmExtraInfo()
		sess.State = StateAskHistory
		return m.transport.SendChoices(ctx, sess.UserID, msgAskMedicalHistory, yesNoWords)
	default:
		return m.transport.SendChoices(ctx, sess.UserID, msgChooseMenuOption, confirmButtons)
	}
}

func (m *Machine) handleAskHistory(ctx context.Context, sess *session.Context, body string) error {
	switch body {
	case BtnNoWord:
		return m.finalSummary(ctx, sess)
	case BtnYesWord:
		cats := eligibleCategories(sess.Patient.Gender)
		sess.Category = cats[0]
		sess.QuestionIndex = 0
		return m.promptHistoryQuestion(ctx, sess)
	default:
		return m.transport.SendChoices(ctx, sess.UserID, msgChooseYesNoWords, yesNoWords)
	}
}

// promptHistoryQuestion asks the question under the history cursor, rolling
// to the next eligible category when the current one is exhausted.
func (m *Machine) promptHistoryQuestion(ctx context.Context, sess *session.Context) error {
	if sess.RepairHistoryCursor() {
		slog.Warn("Machine.promptHistoryQuestion: repaired history cursor", "userID", sess.UserID)
	}
	for sess.QuestionIndex >= len(questions.HistoryQuestions[sess.Category]) {
		next, ok := nextCategory(sess.Category, sess.Patient.Gender)
		if !ok {
			return m.finalSummary(ctx, sess)
		}
		sess.Category = next
		sess.QuestionIndex = 0
	}

	sess.State = StateMedicalHistory
	question := questions.HistoryQuestions[sess.Category][sess.QuestionIndex]
	text := fmt.Sprintf("📋 %s\n\n🔍 %s\n\n%s",
		questions.CategoryNames[sess.Category], question, msgHistoryAnswerGuide)
	return m.transport.SendText(ctx, sess.UserID, text)
}

func (m *Machine) handleMedicalHistory(ctx context.Context, sess *session.Context, body string) error {
	if sess.RepairHistoryCursor() {
		slog.Warn("Machine.handleMedicalHistory: repaired history cursor", "userID", sess.UserID)
	}
	sess.RecordHistoryAnswer(sess.Category, sess.QuestionIndex, body)
	sess.QuestionIndex++
	return m.promptHistoryQuestion(ctx, sess)
}

// finalSummary shows what was collected and asks for consent to submit.
func (m *Machine) finalSummary(ctx context.Context, sess *session.Context) error {
	var b strings.Builder
	b.WriteString("📋 خلاصه اطلاعات ثبت شده:\n\n")
	fmt.Fprintf(&b, "👤 نام: %s\n📅 سن: %d\n⚧ جنسیت: %s\n\n",
		sess.Patient.Name, sess.Patient.Age, sess.Patient.Gender.Label())
	if len(sess.MedicalHistory) > 0 {
		b.WriteString("📚 اطلاعات تکمیلی پزشکی ثبت شده است\n\n")
	}
	b.WriteString(msgConsentFooter)

	sess.State = StateConsent
	return m.transport.SendChoices(ctx, sess.UserID, b.String(), consentButtons)
}

func (m *Machine) handleConsent(ctx context.Context, sess *session.Context, body string) error {
	switch body {
	case BtnConsentNo:
		sess.Reset(StateGettingStarted)
		return m.transport.SendText(ctx, sess.UserID, msgConsentDenied)
	case BtnConsentYes:
		return m.runDiagnosis(ctx, sess)
	default:
		return m.transport.SendChoices(ctx, sess.UserID, msgChooseMenuOption, consentButtons)
	}
}

// runDiagnosis is the submission pipeline: freeze the context, render the
// report, obtain the model output and persist the visit record. Store and
// export failures are logged, never surfaced; the user always gets a reply.
func (m *Machine) runDiagnosis(ctx context.Context, sess *session.Context) error {
	if err := m.transport.SendText(ctx, sess.UserID, msgProcessing); err != nil {
		return err
	}

	snap := sess.Freeze()
	reportText := report.Format(snap)

	diagnosis, err := m.ai.Complete(ctx, genai.SystemPrompt, reportText)
	if err != nil {
		if msg, terminal := genai.TerminalMessage(err); terminal {
			return m.failDiagnosis(ctx, sess, msg)
		}
		// Transport exhaustion degrades to the fixed fallback text; the
		// visit still completes and is recorded.
		slog.Warn("Machine.runDiagnosis: completion exhausted, using fallback", "error", err, "userID", sess.UserID)
		diagnosis = genai.FallbackText
	}

	record := visit.Build(snap, diagnosis, m.botUsername, m.clock())

	if err := m.store.AddVisit(record); err != nil {
		slog.Error("Machine.runDiagnosis: failed to persist visit", "error", err, "userID", sess.UserID, "visitCode", record.VisitCode)
	}
	if m.exporter != nil {
		if err := m.exporter.Append(record); err != nil {
			slog.Warn("Machine.runDiagnosis: markdown export failed", "error", err, "visitCode", record.VisitCode)
		}
	}

	var b strings.Builder
	b.WriteString("✅ تحلیل علائم انجام شد\n\n")
	b.WriteString(record.Diagnosis)
	if record.VisitLink != "" {
		fmt.Fprintf(&b, "\n\n🔗 لینک اختصاصی این ویزیت:\n%s", record.VisitLink)
	}
	b.WriteString("\n\n")
	b.WriteString(msgDiagnosisFooter)

	sess.Reset(StateGettingStarted)
	return m.transport.SendChoices(ctx, sess.UserID, b.String(), mainMenu)
}

// failDiagnosis surfaces a terminally classified completion failure and
// returns the user to the main menu without recording a visit.
func (m *Machine) failDiagnosis(ctx context.Context, sess *session.Context, message string) error {
	slog.Error("Machine.failDiagnosis: diagnosis aborted", "userID", sess.UserID, "message", message)
	sess.Reset(StateGettingStarted)
	return m.transport.SendChoices(ctx, sess.UserID, msgDiagnosisFailed+"\n"+message, mainMenu)
}
