package types

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWrap_ClassifiesWithMarker(t *testing.T) {
	err := Wrap(ErrDecode, "ffmpeg", "read frame", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "ffmpeg: read frame") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap(ErrIO, "", "", nil)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if err.Error() != "video io error: failure" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestBackendUnavailableError(t *testing.T) {
	var err error = &BackendUnavailableError{
		Backend: "ollama",
		Host:    "http://localhost:11434",
		Model:   "llama3.2-vision:11b",
		Reason:  "model not pulled",
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable")
	}
	var bu *BackendUnavailableError
	if !errors.As(err, &bu) || bu.Host == "" || bu.Model == "" {
		t.Fatalf("expected host and model to be carried, got %#v", bu)
	}
	for _, want := range []string{"ollama", "localhost:11434", "llama3.2-vision:11b", "model not pulled"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestMalformedResponseError(t *testing.T) {
	var err error = &MalformedResponseError{StepIndex: 3, Reason: "missing instruction"}
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse")
	}
	if !strings.Contains(err.Error(), "step 3") {
		t.Fatalf("expected step index in %q", err.Error())
	}
}
