package visit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dragent-dev/dragent/internal/models"
	"github.com/dragent-dev/dragent/internal/questions"
)

// MarkdownExporter appends a human-readable entry per visit to a markdown
// log file. Export is best effort: callers log failures and never block the
// user-visible response on it.
type MarkdownExporter struct {
	path string
}

// NewMarkdownExporter creates an exporter writing to the given file path.
func NewMarkdownExporter(path string) *MarkdownExporter {
	return &MarkdownExporter{path: path}
}

// Append writes one visit entry to the markdown log, creating the file and
// its directory on first use.
func (e *MarkdownExporter) Append(record models.VisitRecord) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open markdown log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(renderMarkdown(record)); err != nil {
		return fmt.Errorf("failed to append markdown entry: %w", err)
	}
	slog.Debug("visit.MarkdownExporter: entry appended", "path", e.path, "visitCode", record.VisitCode)
	return nil
}

func renderMarkdown(record models.VisitRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s — %s\n\n", record.VisitCode, record.VisitTimestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- بیمار: %s (%d، %s)\n", record.Patient.Name, record.Patient.Age, record.Patient.Gender.Label())
	if record.VisitLink != "" {
		fmt.Fprintf(&b, "- لینک ویزیت: %s\n", record.VisitLink)
	}

	if len(record.Answers) > 0 {
		b.WriteString("\n### علائم\n\n")
		titles := make([]string, 0, len(record.Answers))
		for title := range record.Answers {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		for _, title := range titles {
			fmt.Fprintf(&b, "**%s**\n\n", title)
			for _, ans := range record.Answers[title] {
				fmt.Fprintf(&b, "- %s\n", ans.Description)
			}
			b.WriteString("\n")
		}
	}

	if record.ExtraInfo != "" {
		fmt.Fprintf(&b, "\n### توضیحات بیمار\n\n%s\n", record.ExtraInfo)
	}

	if len(record.MedicalHistory) > 0 {
		b.WriteString("\n### سوابق پزشکی\n\n")
		for _, cat := range models.HistoryCategoryOrder {
			entries, ok := record.MedicalHistory[cat]
			if !ok || len(entries) == 0 {
				continue
			}
			fmt.Fprintf(&b, "**%s**\n\n", questions.CategoryNames[cat])
			indices := make([]int, 0, len(entries))
			for i := range entries {
				indices = append(indices, i)
			}
			sort.Ints(indices)
			for _, i := range indices {
				if answer := entries[i]; !models.IsNoneAnswer(answer) {
					fmt.Fprintf(&b, "- %s\n", answer)
				}
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n### تشخیص\n\n%s\n", record.Diagnosis)
	return b.String()
}
