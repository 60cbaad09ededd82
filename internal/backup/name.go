// Package backup implements the core backup orchestration: naming backups,
// detecting and marking partial (interrupted) backups, and enforcing
// retention by pruning old ones.
package backup

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const partialSuffix = "_PARTIAL"

var windowsInvalidChars = []rune{'<', '>', ':', '"', '|', '?', '*'}

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func isReplaceable(r rune) bool {
	if r == '/' || r == '\\' || r == 0 {
		return true
	}
	for _, bad := range windowsInvalidChars {
		if r == bad {
			return true
		}
	}
	return r < 0x20
}

// SanitizeBackupName converts an arbitrary string into a name safe to use as
// a directory component on any platform: invalid characters become
// underscores, leading/trailing dots, spaces, and underscores are trimmed,
// the result is capped at 255 characters, and Windows reserved device names
// (CON, PRN, COM1, ...) are prefixed with an underscore.
func SanitizeBackupName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isReplaceable(r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	sanitized := b.String()

	// Trim leading/trailing dots, spaces, underscores, and any other
	// Unicode punctuation (e.g. an ellipsis), not just their ASCII forms.
	sanitized = strings.TrimFunc(sanitized, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})

	if r := []rune(sanitized); len(r) > 255 {
		sanitized = string(r[:255])
	}

	if sanitized == "" {
		return "backup"
	}

	checkName := sanitized
	if idx := strings.Index(checkName, "."); idx >= 0 {
		checkName = checkName[:idx]
	}
	if reservedNames[strings.ToUpper(checkName)] {
		return "_" + sanitized
	}

	return sanitized
}

// GenerateBackupName derives a unique, sanitized backup directory name from
// a source path: the source's base name, sanitized, followed by a
// date/time/millisecond suffix for uniqueness.
func GenerateBackupName(source string) string {
	base := filepath.Base(source)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "backup"
	}
	name := SanitizeBackupName(base)

	now := time.Now().UTC()
	return fmt.Sprintf("%s_%s_%03d", name, now.Format("2006-01-02_150405"), now.Nanosecond()/1_000_000)
}

// MarkPartial renames an interrupted backup directory to flag it as
// incomplete, e.g. "myjob_2024-01-01_120000_000" becomes
// "myjob_2024-01-01_120000_000_PARTIAL".
func MarkPartial(path string) string {
	if strings.HasSuffix(path, partialSuffix) {
		return path
	}
	return path + partialSuffix
}

// IsPartial reports whether name (a directory base name) flags an
// interrupted backup.
func IsPartial(name string) bool {
	return strings.HasSuffix(name, partialSuffix)
}
