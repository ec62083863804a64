package transcript

import (
	"regexp"
	"strings"
)

var (
	reNum      = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\s*(?:mm|cm|nm|n·m|in|ft|psi|bar|v|a|°|%)?`)
	reSequence = regexp.MustCompile(`(?i)\b(first|then|next|after\s+that|finally|now|once|before|step\s+\d+)\b`)
	reAction   = regexp.MustCompile(`(?i)\b(remove|install|insert|turn|tighten|loosen|connect|disconnect|attach|align|press|pull|push|check|verify|replace|clean|inspect|torque|screw|unscrew|place|lift|hold)\b`)
	reSafety   = regexp.MustCompile(`(?i)\b(careful|caution|warning|danger|never|always|gloves|goggles|glasses|unplug|power\s+off|lockout|hot|sharp)\b`)
	reFiller   = regexp.MustCompile(`(?i)\b(um+|uh+|you\s+know|like|basically|okay|so)\b`)
)

// Score rates how much procedural evidence a spoken line carries, in [0..10].
func Score(text string) float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	lower := strings.ToLower(t)

	score := float64(len(reAction.FindAllStringIndex(lower, -1))) * 1.0
	score += float64(len(reSequence.FindAllStringIndex(lower, -1))) * 0.8
	score += float64(len(reSafety.FindAllStringIndex(lower, -1))) * 1.2
	score += float64(len(reNum.FindAllStringIndex(t, -1))) * 0.5
	score -= float64(len(reFiller.FindAllStringIndex(lower, -1))) * 0.3
	// long rambling lines carry less per character
	score -= 0.0008 * float64(len([]rune(t)))

	return clamp(score, 0, 10)
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
