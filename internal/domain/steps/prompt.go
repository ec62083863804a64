package steps

import (
	"fmt"
	"strings"

	"github.com/forPelevin/sopgen/internal/types"
)

const defaultContext = "Manufacturing/assembly process"

// BuildPrompt assembles the instruction text sent alongside the frames. The
// frame list is 1-based and in the same order as the attached images.
func BuildPrompt(frames []types.Frame, taskContext, transcriptText string) string {
	taskContext = strings.TrimSpace(taskContext)
	if taskContext == "" {
		taskContext = defaultContext
	}

	var b strings.Builder
	b.WriteString("You are a technical writer who produces Standard Operating Procedures (SOPs) for industrial, maintenance and assembly work.\n\n")
	fmt.Fprintf(&b, "Task context: %s\n\n", taskContext)
	fmt.Fprintf(&b, "You are given %d frames sampled in order from a video of a worker performing the task.\n\n", len(frames))
	b.WriteString("Frame timestamps:\n")
	for i, f := range frames {
		fmt.Fprintf(&b, "Frame %d at %.2fs\n", i+1, f.Timestamp)
	}

	if t := strings.TrimSpace(transcriptText); t != "" {
		b.WriteString("\nAudio transcript (timestamped):\n")
		b.WriteString(t)
		b.WriteString("\n\nAlign what is said with the frame closest in time; narration often names the tool, part or value shown in that frame.\n")
	}

	b.WriteString(`
Instructions:
1. Follow the frames in order and identify each distinct action, including any disassembly and reassembly.
2. Write one atomic instruction per step in the imperative voice ("Remove", "Tighten", "Connect").
3. Name tools, parts and measurements when they are visible or spoken.
4. For each step choose the timestamp where the action is most clearly visible.
5. Explain in reasoning why the step matters or what to watch for.
6. If parts are removed for a repair, add the reassembly steps in reverse order of removal.
7. End with a final verification step that confirms the work is complete and safe.
8. List relevant safety precautions in safety_notes.

Respond with a single JSON object using exactly this schema:
{
  "title": "Descriptive task name",
  "description": "Short overview of the whole procedure",
  "safety_notes": ["Precaution 1", "Precaution 2"],
  "steps": [
    {
      "step_number": 1,
      "instruction": "Imperative instruction",
      "timestamp_seconds": 12.5,
      "reasoning": "Why this step matters"
    }
  ]
}

Output ONLY valid JSON. Do not wrap it in markdown or code fences.`)
	return b.String()
}
