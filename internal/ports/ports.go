package ports

import (
	"context"
	"io"

	"github.com/forPelevin/sopgen/internal/types"
)

// SampleRequest describes one strided decode.
type SampleRequest struct {
	Video    string
	Stride   int
	MaxWidth int
	// OutDir receives frame_%06d.jpg files, one per selected frame in order.
	OutDir string
}

type VideoTool interface {
	Probe(ctx context.Context, video string) (types.VideoInfo, error)
	// ExtractFrames decodes every Stride-th frame and returns the written
	// file paths in stream order.
	ExtractFrames(ctx context.Context, req SampleRequest) ([]string, error)
	ExtractAudio(ctx context.Context, video, outPath string) error
}

// ASR turns an extracted audio track into timed segments.
type ASR interface {
	// AudioExt is the file extension the recognizer wants, e.g. ".wav".
	AudioExt() string
	Transcribe(ctx context.Context, audioPath, workDir string) ([]types.TranscriptSegment, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, video, workDir string) ([]types.TranscriptSegment, error)
}

type GenerationOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

type GenerateRequest struct {
	Prompt  string
	Images  [][]byte
	Options GenerationOptions
}

type VisionBackend interface {
	Name() string
	Model() string
	// Check verifies the backend can serve Model; failures wrap
	// types.ErrBackendUnavailable.
	Check(ctx context.Context) error
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type HistoryStore interface {
	Record(ctx context.Context, e types.HistoryEntry) error
	List(ctx context.Context, limit int) ([]types.HistoryEntry, error)
	Close() error
}

type ObjectStore interface {
	Download(ctx context.Context, bucket, key, destPath string) error
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
