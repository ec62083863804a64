package steps

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/forPelevin/sopgen/internal/types"
)

const (
	previewRunes  = 500
	maxStepNumber = math.MaxInt32
)

// ParseResponse turns raw backend text into a validated record. It strips a
// surrounding code fence, falls back to the outermost brace span when the text
// is not strict JSON, and back-fills optional fields. It has no side effects.
func ParseResponse(raw string) (types.SOPRecord, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return types.SOPRecord{}, err
	}

	title, ok := obj["title"]
	if !ok {
		return types.SOPRecord{}, malformed(0, "missing title", raw)
	}
	titleStr, ok := title.(string)
	if !ok {
		return types.SOPRecord{}, malformed(0, fmt.Sprintf("title is %T, not a string", title), raw)
	}
	rawSteps, ok := obj["steps"]
	if !ok {
		return types.SOPRecord{}, malformed(0, "missing steps", raw)
	}
	stepList, ok := rawSteps.([]any)
	if !ok && rawSteps != nil {
		return types.SOPRecord{}, malformed(0, fmt.Sprintf("steps is %T, not an array", rawSteps), raw)
	}

	rec := types.SOPRecord{
		Title:       titleStr,
		SafetyNotes: []string{},
		Steps:       make([]types.SOPStep, 0, len(stepList)),
	}
	if v, ok := obj["description"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return types.SOPRecord{}, malformed(0, fmt.Sprintf("description is %T, not a string", v), raw)
		}
		rec.Description = s
	}
	if v, ok := obj["safety_notes"]; ok && v != nil {
		notes, err := stringList(v)
		if err != nil {
			return types.SOPRecord{}, malformed(0, "safety_notes: "+err.Error(), raw)
		}
		rec.SafetyNotes = notes
	}

	zeroBased := false
	for i, item := range stepList {
		idx := i + 1
		st, err := parseStep(item, idx)
		if err != nil {
			return types.SOPRecord{}, malformed(idx, err.Error(), raw)
		}
		if st.StepNumber == 0 {
			zeroBased = true
		}
		rec.Steps = append(rec.Steps, st)
	}

	// A backend counting from zero gets renumbered by position.
	if zeroBased {
		for i := range rec.Steps {
			rec.Steps[i].StepNumber = i + 1
		}
		return rec, nil
	}
	seen := make(map[int]int, len(rec.Steps))
	for i, st := range rec.Steps {
		idx := i + 1
		if prev, dup := seen[st.StepNumber]; dup {
			return types.SOPRecord{}, malformed(idx, fmt.Sprintf("step_number %d already used by step %d", st.StepNumber, prev), raw)
		}
		seen[st.StepNumber] = idx
	}
	return rec, nil
}

func decodeObject(raw string) (map[string]any, error) {
	text := stripFence(raw)
	if text == "" {
		return nil, malformed(0, "empty response", raw)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, malformed(0, "no JSON object found", raw)
	}
	obj = nil
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil || obj == nil {
		reason := "invalid JSON object"
		if err != nil {
			reason = "invalid JSON object: " + err.Error()
		}
		return nil, malformed(0, reason, raw)
	}
	return obj, nil
}

func stripFence(raw string) string {
	t := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(t, "```json"):
		t = t[len("```json"):]
	case strings.HasPrefix(t, "```"):
		t = t[len("```"):]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func parseStep(item any, idx int) (types.SOPStep, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return types.SOPStep{}, fmt.Errorf("is %T, not an object", item)
	}

	rawInstr, ok := m["instruction"]
	if !ok {
		return types.SOPStep{}, fmt.Errorf("missing instruction")
	}
	instr, ok := rawInstr.(string)
	if !ok || strings.TrimSpace(instr) == "" {
		return types.SOPStep{}, fmt.Errorf("instruction must be a non-empty string")
	}

	rawTS, ok := m["timestamp_seconds"]
	if !ok {
		return types.SOPStep{}, fmt.Errorf("missing timestamp_seconds")
	}
	ts, err := number(rawTS)
	if err != nil {
		return types.SOPStep{}, fmt.Errorf("timestamp_seconds: %w", err)
	}
	if ts < 0 {
		return types.SOPStep{}, fmt.Errorf("timestamp_seconds must be >= 0, got %v", ts)
	}

	st := types.SOPStep{
		StepNumber:       idx,
		Instruction:      instr,
		TimestampSeconds: ts,
	}
	if v, ok := m["step_number"]; ok && v != nil {
		n, err := number(v)
		if err != nil {
			return types.SOPStep{}, fmt.Errorf("step_number: %w", err)
		}
		if n != math.Trunc(n) || n < 0 || n > maxStepNumber {
			return types.SOPStep{}, fmt.Errorf("step_number must be an integer in [0, %d], got %v", maxStepNumber, n)
		}
		st.StepNumber = int(n)
	}
	if v, ok := m["reasoning"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return types.SOPStep{}, fmt.Errorf("reasoning is %T, not a string", v)
		}
		st.Reasoning = s
	}
	return st, nil
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("not a finite number")
		}
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "s"), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("is %T, not a number", v)
	}
}

func stringList(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("is %T, not an array", v)
	}
	out := make([]string, 0, len(arr))
	for i, it := range arr {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, not a string", i+1, it)
		}
		out = append(out, s)
	}
	return out, nil
}

func malformed(stepIndex int, reason, raw string) error {
	return &types.MalformedResponseError{
		StepIndex: stepIndex,
		Reason:    reason,
		Preview:   truncate(strings.TrimSpace(raw), previewRunes),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
