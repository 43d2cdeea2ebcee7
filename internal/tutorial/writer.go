package tutorial

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/avelez/codetour/pkg/schema"
)

const attribution = "---\n\nGenerated by [codetour](https://github.com/avelez/codetour)"

// Writer persists a combined tutorial to disk as an index.md plus one
// Markdown file per chapter.
type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write creates outputDir, writes index.md and every chapter file, and
// returns the directory written to.
func (w *Writer) Write(outputDir, indexContent string, chapters []schema.ChapterFile) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution, "create output dir %q", outputDir).WithCause(err)
	}

	indexPath := filepath.Join(outputDir, "index.md")
	if err := os.WriteFile(indexPath, []byte(indexContent), 0o644); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution, "write %q", indexPath).WithCause(err)
	}
	w.logger.Debug("wrote tutorial file", "path", indexPath)

	for _, ch := range chapters {
		p := filepath.Join(outputDir, ch.Filename)
		if err := os.WriteFile(p, []byte(ch.Content), 0o644); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeExecution, "write %q", p).WithCause(err)
		}
		w.logger.Debug("wrote tutorial file", "path", p)
	}
	return outputDir, nil
}

// chapterFilename builds "NN_safe_name.md" from the chapter position and the
// abstraction name, lowercased with non-alphanumerics replaced by underscores.
func chapterFilename(position int, abstractionName string) string {
	var b strings.Builder
	for _, r := range abstractionName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("%02d_%s.md", position, b.String())
}

// mermaidFlowchart renders the abstraction relationship graph as a Mermaid
// flowchart for the tutorial index.
func mermaidFlowchart(abstractions []schema.Abstraction, relationships []schema.Relationship) string {
	lines := []string{"flowchart TD"}
	for i, a := range abstractions {
		name := strings.ReplaceAll(a.Name, `"`, "")
		lines = append(lines, fmt.Sprintf(`    A%d["%s"]`, i, name))
	}
	for _, rel := range relationships {
		if rel.From < 0 || rel.From >= len(abstractions) || rel.To < 0 || rel.To >= len(abstractions) {
			continue
		}
		label := strings.ReplaceAll(strings.ReplaceAll(rel.Label, `"`, ""), "\n", " ")
		// Truncate on runes so multi-byte labels are never split mid-character.
		if runes := []rune(label); len(runes) > 30 {
			label = string(runes[:27]) + "..."
		}
		lines = append(lines, fmt.Sprintf(`    A%d -- "%s" --> A%d`, rel.From, label, rel.To))
	}
	return strings.Join(lines, "\n")
}
