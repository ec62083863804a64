package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/sopgen/internal/domain/match"
	"github.com/forPelevin/sopgen/internal/types"
)

const (
	DocumentFile = "sop.md"
	RecordFile   = "sop.json"
	AssetsDir    = "assets"

	defaultRevision = "1.0"
)

type Document struct {
	Company     string
	Record      types.SOPRecord
	Assignments []match.Assignment
	Date        time.Time
	Revision    string
}

// Output lists what Render wrote, relative to the output directory.
// Images is keyed by step position (1-based).
type Output struct {
	Document string
	Record   string
	Images   map[int]string
}

type Markdown struct{}

func (Markdown) Render(doc Document, outDir string) (Output, error) {
	if err := os.MkdirAll(filepath.Join(outDir, AssetsDir), 0o755); err != nil {
		return Output{}, fmt.Errorf("render: create assets dir: %w", err)
	}

	out := Output{
		Document: DocumentFile,
		Record:   RecordFile,
		Images:   make(map[int]string),
	}
	for i, a := range doc.Assignments {
		if !a.OK || len(a.Frame.Image) == 0 {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(AssetsDir, fmt.Sprintf("step_%03d.jpg", i+1)))
		if err := os.WriteFile(filepath.Join(outDir, filepath.FromSlash(rel)), a.Frame.Image, 0o644); err != nil {
			return Output{}, fmt.Errorf("render: write step %d image: %w", i+1, err)
		}
		out.Images[i+1] = rel
	}

	md := buildMarkdown(doc, out.Images)
	if err := os.WriteFile(filepath.Join(outDir, DocumentFile), []byte(md), 0o644); err != nil {
		return Output{}, fmt.Errorf("render: write document: %w", err)
	}

	b, err := json.MarshalIndent(doc.Record, "", "  ")
	if err != nil {
		return Output{}, fmt.Errorf("render: marshal record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, RecordFile), b, 0o644); err != nil {
		return Output{}, fmt.Errorf("render: write record: %w", err)
	}
	return out, nil
}

func buildMarkdown(doc Document, images map[int]string) string {
	rec := doc.Record
	rev := strings.TrimSpace(doc.Revision)
	if rev == "" {
		rev = defaultRevision
	}
	date := doc.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	if c := strings.TrimSpace(doc.Company); c != "" {
		fmt.Fprintf(&b, "**%s**\n\n", escape(c))
	}
	b.WriteString("STANDARD OPERATING PROCEDURE\n\n")
	fmt.Fprintf(&b, "# %s\n\n", escape(orDefault(rec.Title, "Untitled procedure")))
	if d := strings.TrimSpace(rec.Description); d != "" {
		fmt.Fprintf(&b, "%s\n\n", escape(d))
	}

	b.WriteString("| Document Date | Revision | Total Steps |\n")
	b.WriteString("|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %d |\n\n", date.Format("January 02, 2006"), rev, len(rec.Steps))

	b.WriteString("## Table of Contents\n\n")
	if len(rec.SafetyNotes) > 0 {
		b.WriteString("- [Safety Information](#safety-information)\n")
	}
	b.WriteString("- [Procedure](#procedure)\n")
	for i, st := range rec.Steps {
		fmt.Fprintf(&b, "  %d. [%s](#step-%d)\n", i+1, escape(oneLine(st.Instruction)), i+1)
	}
	b.WriteString("\n")

	if len(rec.SafetyNotes) > 0 {
		b.WriteString("## Safety Information\n\n")
		for _, n := range rec.SafetyNotes {
			if n = strings.TrimSpace(n); n != "" {
				fmt.Fprintf(&b, "- ⚠ %s\n", escape(oneLine(n)))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Procedure\n\n")
	if len(rec.Steps) == 0 {
		b.WriteString("_No steps were identified in this video._\n")
	}
	for i, st := range rec.Steps {
		pos := i + 1
		fmt.Fprintf(&b, "<a id=\"step-%d\"></a>\n### Step %d\n\n", pos, st.StepNumber)
		fmt.Fprintf(&b, "%s\n\n", escape(st.Instruction))
		if img, ok := images[pos]; ok {
			fmt.Fprintf(&b, "![Step %d](%s)\n\n", st.StepNumber, img)
			fmt.Fprintf(&b, "_Image at %.1f seconds_\n\n", frameTime(doc.Assignments, i, st))
		}
		if r := strings.TrimSpace(st.Reasoning); r != "" {
			fmt.Fprintf(&b, "> **Note:** %s\n\n", escape(oneLine(r)))
		}
	}
	return b.String()
}

func frameTime(as []match.Assignment, i int, st types.SOPStep) float64 {
	if i < len(as) && as[i].OK {
		return as[i].Frame.Timestamp
	}
	return st.TimestampSeconds
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", "&lt;",
	">", "&gt;",
	"|", `\|`,
)

func escape(s string) string { return mdEscaper.Replace(strings.TrimSpace(s)) }

func oneLine(s string) string { return strings.Join(strings.Fields(s), " ") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
