package transcript

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forPelevin/sopgen/internal/types"
)

// Format renders one "[start - end]: text" line per non-blank segment.
// An empty result means no speech evidence.
func Format(segments []types.TranscriptSegment) string {
	var b strings.Builder
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%.1fs - %.1fs]: %s", s.Start, s.End, text)
	}
	return b.String()
}

// Budget keeps the most procedural segments whose formatted lines fit in
// maxChars, preserving speech order. maxChars <= 0 disables trimming.
func Budget(segments []types.TranscriptSegment, maxChars int) []types.TranscriptSegment {
	if maxChars <= 0 || len(Format(segments)) <= maxChars {
		return segments
	}

	type ranked struct {
		idx   int
		score float64
		size  int
	}
	rs := make([]ranked, 0, len(segments))
	for i, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		line := fmt.Sprintf("[%.1fs - %.1fs]: %s", s.Start, s.End, text)
		rs = append(rs, ranked{idx: i, score: Score(text), size: len(line) + 1})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score == rs[j].score {
			return rs[i].idx < rs[j].idx
		}
		return rs[i].score > rs[j].score
	})

	keep := make(map[int]bool, len(rs))
	used := 0
	for _, r := range rs {
		if used+r.size > maxChars {
			continue
		}
		keep[r.idx] = true
		used += r.size
	}

	out := make([]types.TranscriptSegment, 0, len(keep))
	for i, s := range segments {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}
