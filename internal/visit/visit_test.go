package visit

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/session"
)

var testTime = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func TestTokenRoundTrip(t *testing.T) {
	for _, userID := range []string{"12345", "989121234567", "7"} {
		token := EncodeToken(userID, testTime)
		if strings.ContainsAny(token, "=+/") {
			t.Errorf("token %q is not clean base64url", token)
		}
		gotUser, gotTS, err := DecodeToken(token)
		if err != nil {
			t.Fatalf("DecodeToken(%q) error: %v", token, err)
		}
		if gotUser != userID {
			t.Errorf("user id round trip = %q, want %q", gotUser, userID)
		}
		if gotTS != "20250314-150926" {
			t.Errorf("timestamp round trip = %q", gotTS)
		}
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	for _, token := range []string{"", "!!!not-base64!!!", "YWJjZGVm"} {
		if _, _, err := DecodeToken(token); !errors.Is(err, models.ErrInvalidVisitLink) {
			t.Errorf("DecodeToken(%q) error = %v, want ErrInvalidVisitLink", token, err)
		}
	}
}

func TestNewCode(t *testing.T) {
	code := NewCode("12345", testTime)
	if !strings.HasPrefix(code, "VISIT-") {
		t.Errorf("code %q lacks prefix", code)
	}
	if len(code) != len("VISIT-")+12 {
		t.Errorf("code %q has wrong length", code)
	}
	if strings.ContainsAny(code[len("VISIT-"):], "=+/") {
		t.Errorf("code %q is not clean base64url", code)
	}
	// Same pair, same code.
	if again := NewCode("12345", testTime); again != code {
		t.Errorf("code not deterministic: %q vs %q", code, again)
	}
	// Different user, different code.
	if other := NewCode("54321", testTime); other == code {
		t.Errorf("distinct users produced identical code %q", code)
	}
}

func TestNewCodeUniquePerTimestamp(t *testing.T) {
	// Telegram chat ids run 9-10 digits; the timestamp must still
	// distinguish two visits of the same user.
	const userID = "123456789"
	times := []time.Time{
		testTime,
		testTime.Add(time.Second),
		testTime.Add(24 * time.Hour),
		testTime.AddDate(1, 0, 0),
	}
	seen := make(map[string]time.Time, len(times))
	for _, ts := range times {
		code := NewCode(userID, ts)
		if prev, ok := seen[code]; ok {
			t.Errorf("visit codes collide: %q for both %v and %v", code, prev, ts)
		}
		seen[code] = ts
	}
}

func TestNewLink(t *testing.T) {
	link := NewLink("dr_agent_bot", "12345", testTime)
	wantPrefix := "https://t.me/dr_agent_bot?start=visit_"
	if !strings.HasPrefix(link, wantPrefix) {
		t.Errorf("link = %q", link)
	}
	token := strings.TrimPrefix(link, wantPrefix)
	if user, _, err := DecodeToken(token); err != nil || user != "12345" {
		t.Errorf("link token does not decode: user=%q err=%v", user, err)
	}

	if got := NewLink("", "12345", testTime); got != "" {
		t.Errorf("expected empty link without bot username, got %q", got)
	}
}

func TestTimestampKey(t *testing.T) {
	if got := TimestampKey(testTime); got != "20250314-150926" {
		t.Errorf("TimestampKey = %q", got)
	}
}

func TestEnsureRecommendationsKeepsExistingSection(t *testing.T) {
	diagnosis := "📋 تشخیص احتمالی:\nسرماخوردگی\n\nتوصیه‌های درمانی:\n• استراحت کنید"
	if got := EnsureRecommendations(diagnosis); got != diagnosis {
		t.Errorf("diagnosis with marker was modified:\n%q", got)
	}
}

func TestEnsureRecommendationsSynthesizesFromKeywords(t *testing.T) {
	diagnosis := "📋 تشخیص احتمالی:\nسرماخوردگی\nمصرف مایعات گرم کمک می‌کند\nپیشنهاد می‌شود استراحت کنید"
	got := EnsureRecommendations(diagnosis)
	if !strings.Contains(got, "توصیه‌های درمانی:") {
		t.Fatal("no recommendations section synthesized")
	}
	if !strings.Contains(got, "• مصرف مایعات گرم کمک می‌کند") {
		t.Error("keyword-matched line missing from synthesized section")
	}
	if !strings.Contains(got, "• پیشنهاد می‌شود استراحت کنید") {
		t.Error("second keyword-matched line missing")
	}
}

func TestEnsureRecommendationsGenericFallback(t *testing.T) {
	got := EnsureRecommendations("📋 تشخیص احتمالی:\nسرماخوردگی")
	if !strings.Contains(got, "مراجعه به پزشک برای دریافت درمان مناسب") {
		t.Errorf("generic recommendation missing:\n%q", got)
	}
}

func TestRecommendationsSection(t *testing.T) {
	diagnosis := "📋 تشخیص احتمالی:\nسرماخوردگی\n\n💊 توصیه‌ها:\nاستراحت کنید\nمایعات بنوشید\n\n⚠️ هشدارها:\nدر صورت تب بالا به پزشک مراجعه کنید"
	blocks := RecommendationsSection(diagnosis)
	if len(blocks) == 0 {
		t.Fatal("no recommendation blocks extracted")
	}
	joined := strings.Join(blocks, "\n")
	if !strings.Contains(joined, "استراحت کنید") {
		t.Errorf("extracted blocks missing content: %q", joined)
	}

	if blocks := RecommendationsSection("متن بدون نشانگر"); blocks != nil {
		t.Errorf("expected nil for diagnosis without markers, got %v", blocks)
	}
}

func TestBuild(t *testing.T) {
	snap := session.Snapshot{
		Patient: models.Patient{UserID: "12345", Name: "علی", Age: 30, Gender: models.GenderMale},
		Answers: map[string][]models.SymptomAnswer{
			"قلب": {{Section: "قلب", Description: "تپش قلب دارید؟", Answered: true}},
		},
		ExtraInfo: "توضیح",
	}
	record := Build(snap, "📋 تشخیص احتمالی:\nسرماخوردگی", "dr_agent_bot", testTime)

	if record.ID == "" {
		t.Error("record has no id")
	}
	if record.UserID != "12345" {
		t.Errorf("UserID = %q", record.UserID)
	}
	if record.VisitCode != NewCode("12345", testTime) {
		t.Errorf("VisitCode = %q", record.VisitCode)
	}
	if record.VisitLink != NewLink("dr_agent_bot", "12345", testTime) {
		t.Errorf("VisitLink = %q", record.VisitLink)
	}
	if !record.VisitTimestamp.Equal(testTime) {
		t.Errorf("VisitTimestamp = %v", record.VisitTimestamp)
	}
	if !strings.Contains(record.Diagnosis, "توصیه‌های درمانی:") {
		t.Error("diagnosis missing post-processed recommendations section")
	}
	if len(record.Answers["قلب"]) != 1 || record.ExtraInfo != "توضیح" {
		t.Error("snapshot data not carried into record")
	}
}
