package captions

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/sopgen/internal/types"
)

// minEvent keeps a step visible when the next step shares its timestamp.
const minEvent = 1500 * time.Millisecond

type event struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RenderStepsASS builds a subtitle track that overlays "Step N: instruction"
// on the source video from each step's timestamp until the next step starts.
// The last step stays up until videoDuration.
func RenderStepsASS(rec types.SOPRecord, videoDuration float64) string {
	events := buildEvents(rec, dur(videoDuration))

	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ev := range events {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ev.Start))
		b.WriteString(",")
		b.WriteString(assTime(ev.End))
		b.WriteString(",Step,,0,0,0,,")
		b.WriteString(ev.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func buildEvents(rec types.SOPRecord, total time.Duration) []event {
	steps := append([]types.SOPStep(nil), rec.Steps...)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].TimestampSeconds < steps[j].TimestampSeconds
	})

	out := make([]event, 0, len(steps))
	for i, st := range steps {
		start := dur(st.TimestampSeconds)
		if total > 0 && start > total {
			start = total
		}
		end := total
		if i+1 < len(steps) {
			end = dur(steps[i+1].TimestampSeconds)
		}
		if end-start < minEvent {
			end = start + minEvent
		}
		text := fmt.Sprintf("Step %d: %s", st.StepNumber, sanitizeASS(st.Instruction))
		out = append(out, event{Start: start, End: end, Text: text})
	}
	return out
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes
WrapStyle: 0

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Step, Arial, 52, &H00FFFFFF, &H00FFFFFF, &H00000000, &H96000000, 1,0,0,0,100,100,0,0,3,2,0,1, 60,60,60,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
