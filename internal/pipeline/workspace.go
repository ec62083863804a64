package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	RunsDir  = "runs"
	LockFile = ".lock"
)

// workspace is the per-run scratch directory. It is locked for the lifetime
// of the run so Prune never removes it from under a live process.
type workspace struct {
	dir  string
	lock *flock.Flock
}

func openWorkspace(cacheDir, runID string) (*workspace, error) {
	dir := filepath.Join(cacheDir, RunsDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock scratch dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("scratch dir %s is in use by another run", dir)
	}
	return &workspace{dir: dir, lock: lock}, nil
}

func (w *workspace) Close() error {
	uerr := w.lock.Unlock()
	rerr := os.RemoveAll(w.dir)
	return errors.Join(uerr, rerr)
}

// Prune removes scratch directories under cacheDir that are older than
// olderThan and not locked by a running process. It returns the removed paths.
func Prune(cacheDir string, olderThan time.Duration, now time.Time) ([]string, error) {
	root := filepath.Join(cacheDir, RunsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < olderThan {
			continue
		}
		dir := filepath.Join(root, e.Name())
		lock := flock.New(filepath.Join(dir, LockFile))
		ok, err := lock.TryLock()
		if err != nil || !ok {
			continue
		}
		err = os.RemoveAll(dir)
		_ = lock.Unlock()
		if err != nil {
			return removed, fmt.Errorf("remove %s: %w", dir, err)
		}
		removed = append(removed, dir)
	}
	return removed, nil
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

// normalizePathSegment lowercases s, folds accented letters to their base
// form and collapses everything else into single dashes.
func normalizePathSegment(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.Und).String(folded)

	var b strings.Builder
	prevDash := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
