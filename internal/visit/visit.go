// Package visit builds and encodes shareable visit records.
//
// A visit record is the immutable artifact of one completed intake and
// diagnosis cycle. Its code and deep link both derive from the same
// (user id, timestamp) pair so a link can always be resolved back to the
// record that produced it.
package visit

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/session"
)

// TimestampLayout is the compact timestamp form embedded in visit codes and
// deep-link tokens.
const TimestampLayout = "20060102-150405"

// codeLength is the number of token characters kept in a visit code.
const codeLength = 12

// EncodeToken produces the URL-safe token for a (user id, timestamp) pair:
// base64url(userID + "-" + timestamp), with trailing padding stripped as
// deep-link arguments must stay clean of '=' characters.
func EncodeToken(userID string, ts time.Time) string {
	raw := userID + "-" + ts.Format(TimestampLayout)
	return strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(raw)), "=")
}

// DecodeToken reverses EncodeToken. The token may be missing trailing
// padding; it is re-padded to a multiple of 4 before decoding. Returns the
// user id and the compact timestamp string.
func DecodeToken(token string) (userID, timestamp string, err error) {
	if token == "" {
		return "", "", models.ErrInvalidVisitLink
	}
	if rem := len(token) % 4; rem != 0 {
		token += strings.Repeat("=", 4-rem)
	}
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", models.ErrInvalidVisitLink, err)
	}
	parts := strings.SplitN(string(decoded), "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", models.ErrInvalidVisitLink
	}
	return parts[0], parts[1], nil
}

// NewCode derives the short visit code for a (user id, timestamp) pair. The
// code is cut from a hash of the pair rather than its direct encoding, so a
// long user id cannot crowd the timestamp out of the truncated form.
func NewCode(userID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(userID + "-" + ts.Format(TimestampLayout)))
	return "VISIT-" + base64.RawURLEncoding.EncodeToString(sum[:])[:codeLength]
}

// NewLink builds the shareable deep link for a visit. Returns an empty
// string when no bot username is configured.
func NewLink(botUsername, userID string, ts time.Time) string {
	if botUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=visit_%s", botUsername, EncodeToken(userID, ts))
}

// TimestampKey returns the compact timestamp form of a visit record,
// matched by stores against decoded deep-link timestamps.
func TimestampKey(ts time.Time) string {
	return ts.Format(TimestampLayout)
}

// Recommendation markers and synthesis keywords for EnsureRecommendations.
var (
	recommendationMarkers  = []string{"توصیه‌های درمانی:", "توصیه‌ها:"}
	recommendationKeywords = []string{"درمان", "دارو", "توصیه", "پیشنهاد", "مصرف"}
)

// genericRecommendation is used when no recommendation-like line exists in
// the diagnosis text.
const genericRecommendation = "مراجعه به پزشک برای دریافت درمان مناسب"

// EnsureRecommendations guarantees the diagnosis text carries a
// recommendations section. When no marker is present, one is synthesized
// from keyword-matched lines of the diagnosis, or a single generic line.
func EnsureRecommendations(diagnosis string) string {
	for _, marker := range recommendationMarkers {
		if strings.Contains(diagnosis, marker) {
			return diagnosis
		}
	}

	var lines []string
	for _, line := range strings.Split(diagnosis, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		for _, kw := range recommendationKeywords {
			if strings.Contains(trimmed, kw) {
				lines = append(lines, trimmed)
				break
			}
		}
	}
	if len(lines) == 0 {
		lines = []string{genericRecommendation}
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(diagnosis, "\n"))
	b.WriteString("\n\nتوصیه‌های درمانی:\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "• %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// prescriptionSections pairs a start marker with the marker that ends the
// recommendations block it opens.
var prescriptionSections = [][2]string{
	{"توصیه‌های ایمن:", "توصیه‌های درمانی:"},
	{"توصیه‌های درمانی:", "⚠️"},
	{"💊 توصیه‌ها:", "\n\n"},
	{"توصیه‌ها:", "\n\n"},
}

// RecommendationsSection extracts the recommendation blocks from a diagnosis
// for the prescription view. Returns nil when none are found, which only
// happens for records predating EnsureRecommendations.
func RecommendationsSection(diagnosis string) []string {
	var out []string
	for _, pair := range prescriptionSections {
		start := strings.Index(diagnosis, pair[0])
		if start < 0 {
			continue
		}
		rest := diagnosis[start+len(pair[0]):]
		if end := strings.Index(rest, pair[1]); end >= 0 {
			rest = rest[:end]
		}
		if block := strings.TrimSpace(rest); block != "" {
			out = append(out, block)
		}
	}
	return out
}

// Build assembles the immutable visit record from a frozen snapshot and the
// model output. The diagnosis is post-processed so a recommendations
// section always exists.
func Build(snap session.Snapshot, diagnosis, botUsername string, ts time.Time) models.VisitRecord {
	return models.VisitRecord{
		ID:             uuid.NewString(),
		UserID:         snap.Patient.UserID,
		VisitCode:      NewCode(snap.Patient.UserID, ts),
		VisitTimestamp: ts,
		VisitLink:      NewLink(botUsername, snap.Patient.UserID, ts),
		Patient:        snap.Patient,
		Answers:        snap.Answers,
		ExtraInfo:      snap.ExtraInfo,
		MedicalHistory: snap.MedicalHistory,
		Diagnosis:      EnsureRecommendations(diagnosis),
	}
}
