package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
)

// upload copies every file under dir to storage.output_bucket, keyed
// prefix/<relative path>, and returns the object keys in walk order.
func (r *Runner) upload(ctx context.Context, dir, prefix string) ([]string, error) {
	if r.deps.Storage == nil {
		return nil, fmt.Errorf("upload requested but object storage is not configured")
	}
	bucket := r.cfg.Storage.OutputBucket

	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := r.uploadFile(ctx, bucket, key, p); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, fmt.Errorf("upload artifacts: %w", err)
	}
	return keys, nil
}

func (r *Runner) uploadFile(ctx context.Context, bucket, key, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return r.deps.Storage.Upload(ctx, bucket, key, f, info.Size(), contentType(p))
}

func contentType(p string) string {
	switch filepath.Ext(p) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".ass":
		return "text/x-ssa; charset=utf-8"
	}
	if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
