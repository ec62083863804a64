package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

// Requirement is an external binary sopgen shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Result {
	results := make([]Result, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		r := Result{Name: req.Name, Optional: req.Optional}
		if cmd == "" {
			r.Detail = "command not configured"
		} else if path, err := exec.LookPath(cmd); err != nil {
			r.Detail = fmt.Sprintf("binary %q not found (%s)", cmd, req.Description)
		} else {
			r.Passed = true
			r.Detail = path
		}
		results = append(results, r)
	}
	return results
}

// CheckDirectoryAccess verifies path (or its nearest existing parent, for
// directories created on demand) is a writable directory.
func CheckDirectoryAccess(name, path string) Result {
	target := path
	for {
		info, err := os.Stat(target)
		if err == nil {
			if !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", target)}
			}
			break
		}
		if !os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", target, err)}
		}
		parent := filepath.Dir(target)
		if parent == target {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		target = parent
	}
	if err := unix.Access(target, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", target, err)}
	}
	if target != path {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created under %s)", path, target)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFile verifies a required input file exists.
func CheckFile(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	case info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckBackend runs the backend's own reachability check with a short timeout.
func CheckBackend(ctx context.Context, backend ports.VisionBackend) Result {
	name := fmt.Sprintf("Vision backend (%s)", backend.Name())
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := backend.Check(checkCtx); err != nil {
		var bu *types.BackendUnavailableError
		if errors.As(err, &bu) && bu.Reason != "" {
			return Result{Name: name, Detail: bu.Reason}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "model " + backend.Model() + " available"}
}
