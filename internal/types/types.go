package types

import "time"

// Frame is one sampled still. Ordinal is the index of the source frame in the
// decoded stream; Timestamp is Ordinal divided by the stream frame rate.
type Frame struct {
	Ordinal   int
	Timestamp float64
	Image     []byte
}

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type SOPStep struct {
	StepNumber       int     `json:"step_number"`
	Instruction      string  `json:"instruction"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Reasoning        string  `json:"reasoning"`
}

type SOPRecord struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SafetyNotes []string  `json:"safety_notes"`
	Steps       []SOPStep `json:"steps"`
}

type VideoInfo struct {
	Duration   float64 `json:"duration_sec"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// HistoryEntry is one completed run as persisted by the history store.
type HistoryEntry struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	StepCount         int       `json:"step_count"`
	Video             string    `json:"video"`
	OutputDir         string    `json:"output_dir"`
	Backend           string    `json:"backend"`
	Model             string    `json:"model"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	CreatedAt         time.Time `json:"created_at"`
}

type Manifest struct {
	RunID          string         `json:"run_id"`
	Input          string         `json:"input"`
	Title          string         `json:"title"`
	Backend        string         `json:"backend"`
	Model          string         `json:"model"`
	TranscriptMode string         `json:"transcript_mode"`
	FramesSampled  int            `json:"frames_sampled"`
	FramesAnalyzed int            `json:"frames_analyzed"`
	Document       string         `json:"document"`
	Record         string         `json:"record"`
	Captions       string         `json:"captions,omitempty"`
	Steps          []ManifestStep `json:"steps"`
	Timings        []StageTiming  `json:"timings"`
}

type ManifestStep struct {
	StepNumber       int     `json:"step_number"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	FrameTimestamp   float64 `json:"frame_timestamp,omitempty"`
	Image            string  `json:"image,omitempty"`
}

type StageTiming struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
}
