// Package questions provides the static question bank for the intake flow.
//
// Sections and their symptom items are data, not configurable logic. They are
// loaded once at startup from an embedded default bank or an external JSON
// file and are read-only for the lifetime of the process.
package questions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "embed"

	"github.com/dragent-dev/dragent/internal/models"
)

//go:embed questions.json
var defaultBank []byte

// Symptom is one yes/no sub-question within a section.
type Symptom struct {
	Description string `json:"description"`
}

// Section is a body-area grouping of symptom questions.
type Section struct {
	ID       int       `json:"id"`
	Title    string    `json:"title"`
	Symptoms []Symptom `json:"symptoms"`
}

type bankFile struct {
	Questions []Section `json:"questions"`
}

// LoadSections loads the ordered section list. When path is empty the
// embedded default bank is used; otherwise the file at path is read.
func LoadSections(path string) ([]Section, error) {
	data := defaultBank
	if path != "" {
		slog.Debug("questions.LoadSections: reading question bank file", "path", path)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read question bank %s: %w", path, err)
		}
		data = b
	}

	var bank bankFile
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if len(bank.Questions) == 0 {
		return nil, fmt.Errorf("question bank contains no sections")
	}
	slog.Info("questions.LoadSections: question bank loaded", "sections", len(bank.Questions))
	return bank.Questions, nil
}

// CategoryNames maps each history category to its Persian display name.
var CategoryNames = map[models.HistoryCategory]string{
	models.CategoryMedicalHistory:  "تاریخچه پزشکی",
	models.CategoryCurrentSymptoms: "علائم فعلی",
	models.CategoryPhysicalExam:    "معاینه فیزیکی",
	models.CategoryLifestyle:       "سبک زندگی و محیطی",
	models.CategoryFamilyHistory:   "سوابق خانوادگی",
	models.CategoryFemaleSpecific:  "اطلاعات ویژه بانوان",
	models.CategoryOtherInfo:       "سایر اطلاعات",
}

// HistoryQuestions holds the free-text questions asked per history category.
// The set and order are fixed; they mirror a standard intake anamnesis form.
var HistoryQuestions = map[models.HistoryCategory][]string{
	models.CategoryMedicalHistory: {
		"بیماری‌های زمینه‌ای (مانند دیابت، فشار خون، بیماری‌های قلبی، آسم، اختلالات خودایمنی):",
		"جراحی‌های قبلی:",
		"داروهای مصرفی فعلی (با ذکر دوز و مدت مصرف):",
		"آلرژی‌ها (دارویی، غذایی، محیطی):",
		"سابقه بستری شدن:",
	},
	models.CategoryCurrentSymptoms: {
		"شرح حال اصلی (دلیل اصلی مراجعه):",
		"زمان شروع علائم:",
		"مدت زمان علائم (ساعتی، روزانه، هفتگی):",
		"شدت علائم (مقیاس ۱ تا ۱۰):",
		"عوامل تشدیدکننده/تسکین‌دهنده:",
		"الگوی زمانی (مثلاً شبانه‌روزی، فصلی):",
		"علائم همراه (تب، لرز، تعریق، کاهش وزن ناخواسته، خستگی، سرگیجه و...):",
	},
	models.CategoryPhysicalExam: {
		"فشار خون:",
		"دمای بدن:",
		"نبض:",
		"تنفس:",
		"یافته‌های قابل توجه (رنگ پوست، تورم، زخم، راش):",
		"معاینه سیستم‌ها (قلبی-عروقی، تنفسی، گوارشی، عصبی):",
	},
	models.CategoryLifestyle: {
		"سیگار/قلیان (مقدار و مدت مصرف):",
		"مصرف الکل یا مواد مخدر:",
		"رژیم غذایی (گیاهخواری، پرچرب، کم‌پروتئین و...):",
		"فعالیت بدنی (کم‌تحرک، ورزش منظم):",
		"شغل و محیط کار (مواجهه با مواد شیمیایی، استرس، آلودگی):",
	},
	models.CategoryFamilyHistory: {
		"بیماری‌های ارثی/خانوادگی (دیابت، سرطان، بیماری‌های قلبی، اختلالات روانی):",
	},
	models.CategoryFemaleSpecific: {
		"وضعیت قاعدگی:",
		"آخرین قاعدگی:",
		"نظم سیکل:",
		"بارداری (هفته):",
		"شیردهی:",
		"روش‌های پیشگیری از بارداری:",
	},
	models.CategoryOtherInfo: {
		"سابقه مسافرت اخیر (برای بررسی بیماری‌های عفونی):",
		"تماس با بیماران عفونی:",
		"واکسیناسیون‌ها (مثلاً کووید-۱۹، کزاز):",
	},
}
