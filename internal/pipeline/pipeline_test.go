package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/My Cool.Video.mp4", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	if !strings.HasPrefix(base, "my-cool-video-20260212-103045Z-") {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len("my-cool-video-20260212-103045Z-")+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
	if got := filepath.Base(buildRunOutDir("out", "s3://videos/jobs/Ölwechsel.mp4", now)); !strings.HasPrefix(got, "olwechsel-") {
		t.Fatalf("unexpected object run dir: %s", got)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
		"Crème Brûlée":      "creme-brulee",
		"Ünïcödé Vidéo":     "unicode-video",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		key    string
		ok     bool
	}{
		{in: "s3://videos/a/b.mp4", bucket: "videos", key: "a/b.mp4", ok: true},
		{in: "s3://videos/", ok: false},
		{in: "s3://videos", ok: false},
		{in: "/tmp/x.mp4", ok: false},
	}
	for _, tt := range tests {
		bucket, key, ok := parseObjectURL(tt.in)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Fatalf("parseObjectURL(%q) = %q,%q,%v", tt.in, bucket, key, ok)
		}
	}
	assert.Equal(t, "s3://b/k.mp4", ObjectURL("b", "k.mp4"))
}

func TestWorkspaceLockAndPrune(t *testing.T) {
	cache := t.TempDir()

	live, err := openWorkspace(cache, "live")
	require.NoError(t, err)
	t.Cleanup(func() { _ = live.Close() })

	_, err = openWorkspace(cache, "live")
	require.Error(t, err, "a locked scratch dir must not be reopened")

	stale := filepath.Join(cache, RunsDir, "stale")
	fresh := filepath.Join(cache, RunsDir, "fresh")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(fresh, 0o755))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(live.dir, old, old))

	removed, err := Prune(cache, time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)
	assert.DirExists(t, live.dir)
	assert.DirExists(t, fresh)
	assert.NoDirExists(t, stale)
}

func TestPrune_NoRunsDir(t *testing.T) {
	removed, err := Prune(t.TempDir(), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

type fakeVideo struct{}

func (fakeVideo) Probe(context.Context, string) (types.VideoInfo, error) {
	return types.VideoInfo{Duration: 10, FPS: 1, FrameCount: 10}, nil
}

func (fakeVideo) ExtractFrames(_ context.Context, req ports.SampleRequest) ([]string, error) {
	var paths []string
	for ord := 0; ord < 10; ord += req.Stride {
		p := filepath.Join(req.OutDir, fmt.Sprintf("frame_%06d.jpg", len(paths)+1))
		if err := os.WriteFile(p, []byte{0xff, 0xd8, byte(ord)}, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (fakeVideo) ExtractAudio(context.Context, string, string) error { return nil }

type fakeVision struct{}

func (fakeVision) Name() string                { return "fake" }
func (fakeVision) Model() string               { return "fake-vision" }
func (fakeVision) Check(context.Context) error { return nil }
func (fakeVision) Generate(context.Context, ports.GenerateRequest) (string, error) {
	return `{"title": "Change oil", "steps": [{"instruction": "Drain the oil", "timestamp_seconds": 3}]}`, nil
}

type fakeStorage struct {
	downloads   []string
	uploads     map[string]string
	failOn      string
	downloadErr error
}

func (f *fakeStorage) Download(_ context.Context, bucket, key, dest string) error {
	f.downloads = append(f.downloads, bucket+"/"+key)
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(dest, []byte("video"), 0o644)
}

func (f *fakeStorage) Upload(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) error {
	if key == f.failOn {
		return errors.New("bucket gone")
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[bucket+"/"+key] = contentType
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.OutDir = filepath.Join(root, "out")
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Transcript.Mode = config.TranscriptNone
	cfg.History.Driver = config.HistoryNone
	return &cfg
}

func TestRunnerRun_LocalInput(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "Oil Change.mp4")
	require.NoError(t, os.WriteFile(input, []byte("video"), 0o644))

	r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}}, nil)
	res, err := r.Run(context.Background(), Request{Input: input, RunID: "run-42"})
	require.NoError(t, err)

	assert.Equal(t, "run-42", res.RunID)
	assert.True(t, strings.HasPrefix(filepath.Base(res.OutDir), "oil-change-"), res.OutDir)
	assert.FileExists(t, filepath.Join(res.OutDir, "sop.md"))
	assert.FileExists(t, filepath.Join(res.OutDir, "manifest.json"))
	require.Len(t, res.Manifest.Steps, 1)
	assert.Equal(t, 2.0, res.Manifest.Steps[0].FrameTimestamp)
	assert.Empty(t, res.Uploaded)
	assert.NoDirExists(t, filepath.Join(cfg.Paths.CacheDir, RunsDir, "run-42"), "scratch dir must be removed")
}

func TestRunnerRun_ObjectInputAndUpload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.OutputBucket = "sops"
	store := &fakeStorage{}

	r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}, Storage: store}, nil)
	res, err := r.Run(context.Background(), Request{
		Input:        "s3://videos/uploads/oil.mp4",
		Upload:       true,
		UploadPrefix: "job-7",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"videos/uploads/oil.mp4"}, store.downloads)
	assert.Equal(t, "s3://videos/uploads/oil.mp4", res.Manifest.Input)

	keys := append([]string(nil), res.Uploaded...)
	sort.Strings(keys)
	assert.Contains(t, keys, "job-7/sop.md")
	assert.Contains(t, keys, "job-7/sop.json")
	assert.Contains(t, keys, "job-7/manifest.json")
	assert.Contains(t, keys, "job-7/assets/step_001.jpg")
	assert.Equal(t, "text/markdown; charset=utf-8", store.uploads["sops/job-7/sop.md"])
}

func TestRunnerRun_Errors(t *testing.T) {
	cfg := testConfig(t)

	r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}}, nil)
	_, err := r.Run(context.Background(), Request{Input: filepath.Join(t.TempDir(), "missing.mp4")})
	require.ErrorIs(t, err, types.ErrIO)

	_, err = r.Run(context.Background(), Request{Input: "s3://videos/a.mp4"})
	require.ErrorContains(t, err, "MINIO_ACCESS_KEY")

	_, err = r.Run(context.Background(), Request{Input: "  "})
	require.ErrorContains(t, err, "input is empty")

	entries, _ := os.ReadDir(filepath.Join(cfg.Paths.CacheDir, RunsDir))
	assert.Empty(t, entries, "failed runs must not leave scratch dirs")
}

func TestRunnerRun_ObjectDownloadErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		wantIO bool
	}{
		{name: "missing object", err: fmt.Errorf("download s3://videos/a.mp4: %w", fs.ErrNotExist), wantIO: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantIO: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}, Storage: &fakeStorage{downloadErr: tt.err}}, nil)
			_, err := r.Run(context.Background(), Request{Input: "s3://videos/a.mp4"})
			require.Error(t, err)
			if got := errors.Is(err, types.ErrIO); got != tt.wantIO {
				t.Fatalf("errors.Is(err, ErrIO) = %v, want %v (err: %v)", got, tt.wantIO, err)
			}
		})
	}
}

func TestRunnerRun_RemoveLocalAfterUpload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.OutputBucket = "sops"
	store := &fakeStorage{}

	r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}, Storage: store}, nil)
	res, err := r.Run(context.Background(), Request{
		Input:        "s3://videos/uploads/oil.mp4",
		Upload:       true,
		UploadPrefix: "job-8",
		RemoveLocal:  true,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Uploaded, "job-8/sop.md")
	assert.Empty(t, res.OutDir)

	entries, err := os.ReadDir(cfg.Paths.OutDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "local run dir must be removed once uploaded")
}

func TestRunnerRun_UploadFailureKeepsLocalRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.OutputBucket = "sops"
	input := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(input, []byte("video"), 0o644))

	store := &fakeStorage{failOn: "x/manifest.json"}
	r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}, Storage: store}, nil)
	res, err := r.Run(context.Background(), Request{Input: input, Upload: true, UploadPrefix: "x", RemoveLocal: true})
	require.Error(t, err)
	assert.DirExists(t, res.OutDir)
}

func TestRunnerRun_UploadFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.OutputBucket = "sops"
	input := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(input, []byte("video"), 0o644))

	store := &fakeStorage{failOn: "x/manifest.json"}
	r := NewWithDeps(cfg, Deps{Video: fakeVideo{}, Vision: fakeVision{}, Storage: store}, nil)
	_, err := r.Run(context.Background(), Request{Input: input, Upload: true, UploadPrefix: "x"})
	require.ErrorContains(t, err, "bucket gone")
}

func TestNewVisionBackend(t *testing.T) {
	cfg := config.Default().Vision
	cfg.Model = "llava:7b"
	b, err := NewVisionBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", b.Name())
	assert.Equal(t, "llava:7b", b.Model())

	cfg.Backend = config.BackendGemini
	cfg.Model = ""
	b, err = NewVisionBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", b.Name())

	cfg.Backend = "nope"
	_, err = NewVisionBackend(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewTranscriber(t *testing.T) {
	for _, mode := range []string{config.TranscriptLocal, config.TranscriptAPI, config.TranscriptNone} {
		cfg := config.Default().Transcript
		cfg.Mode = mode
		if NewTranscriber(cfg, fakeVideo{}) == nil {
			t.Fatalf("nil transcriber for mode %q", mode)
		}
	}
}
