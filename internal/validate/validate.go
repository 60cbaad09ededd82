// Package validate checks a backup job's source/target pair for problems
// before a backup is ever attempted.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Result carries non-fatal warnings discovered while validating a job.
// An empty Result with a nil error means the job is fully clear to run.
type Result struct {
	Warnings []string
}

const writeTestFile = ".keephive_write_test"

// windowsLongPathThreshold is the path length (in characters) beyond which
// Windows may refuse to operate on a path without long-path support
// enabled. The check is advisory on every platform.
const windowsLongPathThreshold = 200

// Validate checks source and target for a backup job, returning a Result
// with any soft warnings, or an error if the job cannot run at all.
//
// Check order mirrors the original implementation: source existence, source
// != target, source readability, target existence-or-creation, target is a
// directory, target writability, a circular-path check (target must not be
// nested inside source), then two soft checks (disk space, long-path
// length) that only ever add warnings.
func Validate(source, target string) (Result, error) {
	var result Result

	srcInfo, err := os.Stat(source)
	if err != nil {
		return result, fmt.Errorf("source %q does not exist: %w", source, err)
	}
	if !srcInfo.IsDir() {
		return result, fmt.Errorf("source %q is not a directory", source)
	}

	absSource, err := filepath.Abs(source)
	if err != nil {
		return result, err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return result, err
	}
	if absSource == absTarget {
		return result, fmt.Errorf("source and target must not be the same path")
	}

	if _, err := os.ReadDir(source); err != nil {
		return result, fmt.Errorf("source %q is not readable: %w", source, err)
	}

	if _, err := os.Stat(target); os.IsNotExist(err) {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return result, fmt.Errorf("failed to create target %q: %w", target, err)
		}
	} else if err != nil {
		return result, err
	}

	targetInfo, err := os.Stat(target)
	if err != nil {
		return result, err
	}
	if !targetInfo.IsDir() {
		return result, fmt.Errorf("target %q is not a directory", target)
	}

	probe := filepath.Join(target, writeTestFile)
	if err := os.WriteFile(probe, []byte{}, 0o644); err != nil {
		return result, fmt.Errorf("target %q is not writable: %w", target, err)
	}
	_ = os.Remove(probe)

	if strings.HasPrefix(absTarget, absSource+string(filepath.Separator)) || absTarget == absSource {
		return result, fmt.Errorf("target %q must not be nested inside source %q", target, source)
	}

	if warning := checkDiskSpace(source, target); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	if len(absTarget) > windowsLongPathThreshold {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"target path %q exceeds %d characters; may fail on Windows without long-path support", target, windowsLongPathThreshold))
	}

	return result, nil
}
