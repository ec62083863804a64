package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/sopgen/internal/pipeline"
	"github.com/forPelevin/sopgen/internal/types"
)

type fakeRunner struct {
	res  pipeline.Result
	err  error
	reqs []pipeline.Request
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

type fakeStatus struct{ msgs []StatusMessage }

func (f *fakeStatus) PublishStatus(_ context.Context, b []byte) error {
	var m StatusMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeStatus) statuses() []JobStatus {
	out := make([]JobStatus, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Status)
	}
	return out
}

type fakeDLQ struct{ reasons []string }

func (f *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	f.reasons = append(f.reasons, reason)
	return nil
}

func newTestHandler(runner Runner) (*Handler, *fakeStatus, *fakeDLQ) {
	st, dlq := &fakeStatus{}, &fakeDLQ{}
	return NewHandler(HandlerConfig{InputBucket: "videos", MaxAttempts: 3}, runner, st, dlq, nil), st, dlq
}

func TestHandle_Success(t *testing.T) {
	runner := &fakeRunner{res: pipeline.Result{
		Record:   types.SOPRecord{Title: "Change oil", Steps: []types.SOPStep{{StepNumber: 1}, {StepNumber: 2}}},
		Uploaded: []string{"job-1/sop.md"},
	}}
	h, st, dlq := newTestHandler(runner)

	err := h.Handle(context.Background(), []byte(`{"job_id":"job-1","video_key":"uploads/oil.mp4","context":"garage","company":"ACME"}`), 1)
	require.NoError(t, err)

	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Equal(t, "s3://videos/uploads/oil.mp4", req.Input)
	assert.Equal(t, "garage", req.Context)
	assert.Equal(t, "ACME", req.Company)
	assert.True(t, req.Upload)
	assert.Equal(t, "job-1", req.UploadPrefix)
	assert.True(t, req.RemoveLocal)
	assert.NotEmpty(t, req.RunID)

	assert.Equal(t, []JobStatus{StatusProcessing, StatusCompleted}, st.statuses())
	done := st.msgs[1]
	assert.Equal(t, "Change oil", done.Title)
	assert.Equal(t, 2, done.StepCount)
	assert.Equal(t, "job-1/sop.md", done.Document)
	assert.Equal(t, "job-1/manifest.json", done.Manifest)
	assert.Equal(t, 3, done.MaxAttempts)
	assert.Empty(t, dlq.reasons)
}

func TestHandle_RetryableFailure(t *testing.T) {
	boom := types.Wrap(types.ErrBackendTimeout, "ollama", "no response", nil)
	tests := []struct {
		attempt int
		want    JobStatus
	}{
		{attempt: 1, want: StatusRetrying},
		{attempt: 3, want: StatusFailed},
	}
	for _, tt := range tests {
		h, st, dlq := newTestHandler(&fakeRunner{err: boom})
		err := h.Handle(context.Background(), []byte(`{"job_id":"j","video_key":"k.mp4"}`), tt.attempt)
		require.ErrorIs(t, err, types.ErrBackendTimeout)
		assert.Equal(t, []JobStatus{StatusProcessing, tt.want}, st.statuses())
		assert.Contains(t, st.msgs[1].ErrorMessage, "no response")
		assert.Empty(t, dlq.reasons, "the consumer owns dead-lettering of retryable failures")
	}
}

func TestHandle_PermanentFailureIsDeadLettered(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "decode", err: types.Wrap(types.ErrDecode, "extract frames", "decoder produced no frames", nil)},
		{name: "no frames", err: types.ErrNoFramesAvailable},
		{name: "missing object", err: types.Wrap(types.ErrIO, "fetch input", "s3://videos/k.mp4", errors.New("not found"))},
		{name: "empty video", err: types.Wrap(types.ErrIO, "open video", "k.mp4 is empty", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, st, dlq := newTestHandler(&fakeRunner{err: tt.err})
			err := h.Handle(context.Background(), []byte(`{"job_id":"j","video_key":"k.mp4"}`), 1)
			require.NoError(t, err)
			assert.Equal(t, []JobStatus{StatusProcessing, StatusFailed}, st.statuses())
			require.Len(t, dlq.reasons, 1)
			assert.Contains(t, dlq.reasons[0], "permanent")
		})
	}
}

func TestHandle_BadMessages(t *testing.T) {
	bodies := map[string]string{
		"not json":       `{`,
		"missing job id": `{"video_key":"k.mp4"}`,
		"missing key":    `{"job_id":"j"}`,
		"path in job id": `{"job_id":"../j","video_key":"k.mp4"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{}
			h, st, dlq := newTestHandler(runner)
			require.NoError(t, h.Handle(context.Background(), []byte(body), 1))
			assert.Empty(t, runner.reqs)
			assert.Empty(t, st.msgs)
			require.Len(t, dlq.reasons, 1)
		})
	}
}

func TestHandle_StatusPublishFailureDoesNotFailJob(t *testing.T) {
	h := NewHandler(HandlerConfig{InputBucket: "videos"}, &fakeRunner{}, failingStatus{}, nil, nil)
	require.NoError(t, h.Handle(context.Background(), []byte(`{"job_id":"j","video_key":"k.mp4"}`), 1))
}

type failingStatus struct{}

func (failingStatus) PublishStatus(context.Context, []byte) error { return errors.New("channel closed") }

func TestNewJob(t *testing.T) {
	msg, body, err := NewJob(" /uploads/a.mp4 ", "ctx", "")
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.mp4", msg.VideoKey)
	assert.NotEmpty(t, msg.JobID)

	var decoded JobMessage
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, msg, decoded)

	_, _, err = NewJob("  ", "", "")
	require.Error(t, err)
}
