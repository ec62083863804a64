package frames

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

type fakeVideo struct {
	info       types.VideoInfo
	probeErr   error
	extractErr error
	gotReq     ports.SampleRequest
}

func (f *fakeVideo) Probe(context.Context, string) (types.VideoInfo, error) {
	return f.info, f.probeErr
}

func (f *fakeVideo) ExtractFrames(_ context.Context, req ports.SampleRequest) ([]string, error) {
	f.gotReq = req
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	var out []string
	for n, k := 0, 0; n < f.info.FrameCount; n += req.Stride {
		k++
		p := filepath.Join(req.OutDir, fmt.Sprintf("frame_%06d.jpg", k))
		if err := os.WriteFile(p, []byte{0xff, 0xd8, byte(n)}, 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeVideo) ExtractAudio(context.Context, string, string) error { return nil }

func TestStride(t *testing.T) {
	tests := []struct {
		fps, interval float64
		want          int
	}{
		{30, 2, 60},
		{29.97, 2, 60},
		{25, 0.5, 13},
		{10, 0.01, 1},
		{24, 1, 24},
	}
	for _, tt := range tests {
		if got := Stride(tt.fps, tt.interval); got != tt.want {
			t.Fatalf("Stride(%v, %v) = %d, want %d", tt.fps, tt.interval, got, tt.want)
		}
	}
}

func TestSample_TenSecondsEveryTwo(t *testing.T) {
	v := &fakeVideo{info: types.VideoInfo{Duration: 10, FPS: 30, FrameCount: 300, Width: 1920, Height: 1080}}
	s := NewSampler(v, t.TempDir())

	got, err := s.Sample(context.Background(), "in.mp4", 2, 512)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	want := []float64{0, 2, 4, 6, 8}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i, f := range got {
		if f.Timestamp != want[i] {
			t.Fatalf("frame %d timestamp = %v, want %v", i, f.Timestamp, want[i])
		}
		if f.Ordinal != i*60 {
			t.Fatalf("frame %d ordinal = %d, want %d", i, f.Ordinal, i*60)
		}
		if len(f.Image) == 0 {
			t.Fatalf("frame %d has no image bytes", i)
		}
	}
	if v.gotReq.Stride != 60 || v.gotReq.MaxWidth != 512 {
		t.Fatalf("unexpected request: %+v", v.gotReq)
	}
	if _, err := os.Stat(v.gotReq.OutDir); !os.IsNotExist(err) {
		t.Fatalf("expected decode dir to be removed, stat err=%v", err)
	}
}

func TestSample_CountMonotonicAndInRange(t *testing.T) {
	cases := []struct {
		frames   int
		fps      float64
		interval float64
	}{
		{frames: 1, fps: 30, interval: 2},
		{frames: 301, fps: 30, interval: 2},
		{frames: 1000, fps: 24, interval: 0.5},
		{frames: 77, fps: 0.5, interval: 1},
	}
	for _, tc := range cases {
		duration := float64(tc.frames) / tc.fps
		v := &fakeVideo{info: types.VideoInfo{Duration: duration, FPS: tc.fps, FrameCount: tc.frames}}
		got, err := NewSampler(v, t.TempDir()).Sample(context.Background(), "in.mp4", tc.interval, 0)
		if err != nil {
			t.Fatalf("sample %+v: %v", tc, err)
		}
		stride := Stride(tc.fps, tc.interval)
		wantN := (tc.frames-1)/stride + 1
		if len(got) != wantN {
			t.Fatalf("%+v: expected %d frames, got %d", tc, wantN, len(got))
		}
		for i := range got {
			if got[i].Timestamp < 0 || got[i].Timestamp > duration {
				t.Fatalf("%+v: timestamp %v out of range", tc, got[i].Timestamp)
			}
			if i > 0 && got[i].Timestamp <= got[i-1].Timestamp {
				t.Fatalf("%+v: timestamps not strictly increasing at %d", tc, i)
			}
		}
	}
}

func TestSample_Errors(t *testing.T) {
	cases := []struct {
		name string
		v    *fakeVideo
		want error
	}{
		{
			name: "probe failure is io",
			v:    &fakeVideo{probeErr: errors.New("no such file")},
			want: types.ErrIO,
		},
		{
			name: "zero length is io",
			v:    &fakeVideo{info: types.VideoInfo{FPS: 30, FrameCount: 0}},
			want: types.ErrIO,
		},
		{
			name: "decode failure",
			v: &fakeVideo{
				info:       types.VideoInfo{Duration: 10, FPS: 30, FrameCount: 300},
				extractErr: errors.New("invalid data found when processing input"),
			},
			want: types.ErrDecode,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewSampler(tc.v, t.TempDir()).Sample(context.Background(), "in.mp4", 2, 512)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got != nil {
				t.Fatalf("expected no partial frames, got %d", len(got))
			}
		})
	}
}

func TestSample_RejectsNonPositiveInterval(t *testing.T) {
	v := &fakeVideo{info: types.VideoInfo{Duration: 10, FPS: 30, FrameCount: 300}}
	if _, err := NewSampler(v, t.TempDir()).Sample(context.Background(), "in.mp4", 0, 512); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestPersistAdvisory_ReportsOnSideChannel(t *testing.T) {
	frames := []types.Frame{{Ordinal: 0, Image: []byte{1}}, {Ordinal: 60, Timestamp: 2, Image: []byte{2}}}

	dir := filepath.Join(t.TempDir(), "frames")
	if err := <-PersistAdvisory(frames, dir); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame_000060.jpg")); err != nil {
		t.Fatalf("expected persisted frame: %v", err)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if err := <-PersistAdvisory(frames, filepath.Join(blocker, "frames")); err == nil {
		t.Fatalf("expected persistence error on side channel")
	}
	if len(frames) != 2 || frames[1].Timestamp != 2 {
		t.Fatalf("frames mutated by persistence")
	}
}
