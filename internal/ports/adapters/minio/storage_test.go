package minio

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStorageDoesNotDial(t *testing.T) {
	s, err := NewStorage(StorageConfig{Endpoint: "127.0.0.1:1", AccessKey: "a", SecretKey: "b"})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if s.client == nil {
		t.Fatal("expected client")
	}
}

func TestDownload_MissingObjectIsNotExist(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		notExist bool
	}{
		{name: "missing key", status: http.StatusNotFound, notExist: true},
		{name: "access denied", status: http.StatusForbidden, notExist: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s, err := NewStorage(StorageConfig{
				Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
				AccessKey: "a",
				SecretKey: "b",
				Region:    "us-east-1",
			})
			if err != nil {
				t.Fatalf("NewStorage: %v", err)
			}
			err = s.Download(context.Background(), "videos", "missing.mp4", filepath.Join(t.TempDir(), "in.mp4"))
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := errors.Is(err, fs.ErrNotExist); got != tt.notExist {
				t.Fatalf("errors.Is(err, fs.ErrNotExist) = %v, want %v (err: %v)", got, tt.notExist, err)
			}
		})
	}
}
