package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

func makeFrames(n int, interval float64) []types.Frame {
	out := make([]types.Frame, n)
	for i := range out {
		out[i] = types.Frame{Ordinal: i, Timestamp: float64(i) * interval, Image: []byte{byte(i)}}
	}
	return out
}

func TestSubsample(t *testing.T) {
	for _, n := range []int{1, 5, 20, 21, 39, 40, 100, 1001} {
		frames := makeFrames(n, 2)
		got := Subsample(frames, MaxFrames)

		want := n
		if n > MaxFrames {
			want = MaxFrames
		}
		require.Len(t, got, want, "n=%d", n)
		for i, f := range got {
			if n > MaxFrames {
				assert.Equal(t, frames[i*n/MaxFrames], f, "n=%d i=%d", n, i)
			}
			if i > 0 {
				assert.Greater(t, f.Timestamp, got[i-1].Timestamp, "n=%d: duplicate or unordered pick at %d", n, i)
			}
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	frames := []types.Frame{{Timestamp: 0}, {Timestamp: 2.5}}

	p := BuildPrompt(frames, "  ", "")
	assert.Contains(t, p, "Task context: Manufacturing/assembly process")
	assert.Contains(t, p, "Frame 1 at 0.00s")
	assert.Contains(t, p, "Frame 2 at 2.50s")
	assert.NotContains(t, p, "Audio transcript")
	for _, key := range []string{`"title"`, `"description"`, `"safety_notes"`, `"step_number"`, `"instruction"`, `"timestamp_seconds"`, `"reasoning"`} {
		assert.Contains(t, p, key)
	}
	assert.Contains(t, p, "reverse order")
	assert.Contains(t, p, "final verification")

	p = BuildPrompt(frames, "Replace a bike chain", "[0.0s - 2.0s]: Shift to the smallest cog")
	assert.Contains(t, p, "Task context: Replace a bike chain")
	assert.Contains(t, p, "Audio transcript")
	assert.Contains(t, p, "Shift to the smallest cog")
}

type fakeBackend struct {
	checkErr error
	resp     string
	genErr   error
	block    bool
	got      ports.GenerateRequest
	calls    int
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-vision" }

func (f *fakeBackend) Check(context.Context) error { return f.checkErr }

func (f *fakeBackend) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	f.calls++
	f.got = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.resp, f.genErr
}

func TestEngineInfer_SendsSubsampledFrames(t *testing.T) {
	b := &fakeBackend{resp: `{"title":"T","steps":[{"instruction":"A","timestamp_seconds":2}]}`}
	e := NewEngine(b, Config{})

	rec, err := e.Infer(context.Background(), makeFrames(45, 1), "ctx", nil)
	require.NoError(t, err)
	assert.Equal(t, "T", rec.Title)
	assert.Len(t, b.got.Images, MaxFrames)
	assert.Equal(t, DefaultOptions, b.got.Options)
	assert.Contains(t, b.got.Prompt, fmt.Sprintf("Frame %d at", MaxFrames))
	assert.NotContains(t, b.got.Prompt, fmt.Sprintf("Frame %d at", MaxFrames+1))
	// frames[19*45/20] = frames[42]
	assert.Contains(t, b.got.Prompt, "Frame 20 at 42.00s")
}

func TestEngineInfer_BackendUnavailable(t *testing.T) {
	b := &fakeBackend{checkErr: errors.New("connection refused")}
	_, err := NewEngine(b, Config{}).Infer(context.Background(), makeFrames(3, 2), "", nil)
	require.True(t, errors.Is(err, types.ErrBackendUnavailable), "got %v", err)

	var bu *types.BackendUnavailableError
	require.True(t, errors.As(err, &bu))
	assert.Equal(t, "fake-vision", bu.Model)
	assert.Zero(t, b.calls)
}

func TestEngineInfer_Timeout(t *testing.T) {
	b := &fakeBackend{block: true}
	_, err := NewEngine(b, Config{Timeout: 20 * time.Millisecond}).Infer(context.Background(), makeFrames(3, 2), "", nil)
	require.True(t, errors.Is(err, types.ErrBackendTimeout), "got %v", err)
	assert.Contains(t, err.Error(), "fewer frames")
	assert.Equal(t, 1, b.calls)
}

func TestEngineInfer_MalformedIsNotRetried(t *testing.T) {
	b := &fakeBackend{resp: "sorry, no idea"}
	_, err := NewEngine(b, Config{}).Infer(context.Background(), makeFrames(3, 2), "", nil)
	require.True(t, errors.Is(err, types.ErrMalformedResponse), "got %v", err)
	assert.Equal(t, 1, b.calls)
}

func TestEngineInfer_GenerateError(t *testing.T) {
	b := &fakeBackend{genErr: errors.New("status 500")}
	_, err := NewEngine(b, Config{}).Infer(context.Background(), makeFrames(3, 2), "", nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "fake generate"))
}

func TestEngineInfer_NoFrames(t *testing.T) {
	_, err := NewEngine(&fakeBackend{}, Config{}).Infer(context.Background(), nil, "", nil)
	require.True(t, errors.Is(err, types.ErrNoFramesAvailable), "got %v", err)
}

func TestEngineInfer_FormatsTranscriptWithinBudget(t *testing.T) {
	b := &fakeBackend{resp: validBody}
	segs := []types.TranscriptSegment{
		{Start: 0, End: 2, Text: "First, unplug the unit."},
		{Start: 2, End: 4, Text: "Nice weather today."},
	}

	_, err := NewEngine(b, Config{}).Infer(context.Background(), makeFrames(3, 2), "", segs)
	require.NoError(t, err)
	assert.Contains(t, b.got.Prompt, "[0.0s - 2.0s]: First, unplug the unit.")
	assert.Contains(t, b.got.Prompt, "[2.0s - 4.0s]: Nice weather today.")

	b = &fakeBackend{resp: validBody}
	_, err = NewEngine(b, Config{TranscriptMaxChars: 40}).Infer(context.Background(), makeFrames(3, 2), "", segs)
	require.NoError(t, err)
	assert.Contains(t, b.got.Prompt, "First, unplug the unit.")
	assert.NotContains(t, b.got.Prompt, "Nice weather today.")

	b = &fakeBackend{resp: validBody}
	_, err = NewEngine(b, Config{}).Infer(context.Background(), makeFrames(3, 2), "", nil)
	require.NoError(t, err)
	assert.NotContains(t, b.got.Prompt, "Audio transcript")
}
