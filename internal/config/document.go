// Package config defines keephive's configuration document: the set of
// backup jobs to run, their schedules, and the service-wide settings that
// govern retention, logging, and state persistence.
package config

import (
	"fmt"
	"io"
	"os"

	"oss.nandlabs.io/keephive/codec"
	"oss.nandlabs.io/keephive/codec/validator"
	"oss.nandlabs.io/keephive/fsutils"
)

// structValidator enforces the "constraints" struct tags declared on
// Document and BackupJob (required fields, numeric ranges, enums). Validate
// runs it after the duplicate-ID check and before each job's schedule check.
var structValidator = validator.NewStructValidator()

// LogRotationKind selects how log files are rotated.
type LogRotationKind string

const (
	LogRotationDaily  LogRotationKind = "daily"
	LogRotationHourly LogRotationKind = "hourly"
	LogRotationNever  LogRotationKind = "never"
)

const (
	DefaultRetentionCount = 5
	DefaultLogLevel       = "info"
	DefaultStatePath      = ".keephive_state.json"
	DefaultLogDirectory   = "logs"
)

// BackupJob is a single source-to-target backup definition.
type BackupJob struct {
	ID       string   `json:"id" yaml:"id" constraints:"notnull=true"`
	Source   string   `json:"source" yaml:"source" constraints:"notnull=true"`
	Target   string   `json:"target" yaml:"target" constraints:"notnull=true"`
	Schedule Schedule `json:"schedule" yaml:"schedule" constraints:"-"`
	// Description is optional free text; it plays no part in scheduling.
	Description string `json:"description,omitempty" yaml:"description,omitempty" constraints:"-"`
}

// Document is the root of keephive's configuration file.
type Document struct {
	Jobs           []BackupJob     `json:"jobs" yaml:"jobs" constraints:"-"`
	RetentionCount int             `json:"retention_count" yaml:"retention_count" constraints:"min=0"`
	LogLevel       string          `json:"log_level" yaml:"log_level" constraints:"enum=off,error,warn,info,debug,trace"`
	LogDirectory   string          `json:"log_directory" yaml:"log_directory" constraints:"-"`
	LogRotation    LogRotationKind `json:"log_rotation" yaml:"log_rotation" constraints:"-"`
	StatePath      string          `json:"state_path" yaml:"state_path" constraints:"-"`
}

// WithDefaults returns a copy of d with zero-valued fields replaced by
// keephive's defaults.
func (d Document) WithDefaults() Document {
	if d.RetentionCount <= 0 {
		d.RetentionCount = DefaultRetentionCount
	}
	if d.LogLevel == "" {
		d.LogLevel = DefaultLogLevel
	}
	if d.LogDirectory == "" {
		d.LogDirectory = DefaultLogDirectory
	}
	if d.LogRotation == "" {
		d.LogRotation = LogRotationDaily
	}
	if d.StatePath == "" {
		d.StatePath = DefaultStatePath
	}
	return d
}

// Validate checks the document for duplicate job IDs and schedule errors.
// Mirrors the original's "fail atomically, never partially" approach: the
// first error encountered aborts validation.
func (d Document) Validate() error {
	seen := make(map[string]int, len(d.Jobs))
	var dupeMsg string
	for i, job := range d.Jobs {
		if first, ok := seen[job.ID]; ok {
			dupeMsg += fmt.Sprintf("\n  - Job ID '%s' appears at positions %d and %d", job.ID, first, i)
			continue
		}
		seen[job.ID] = i
	}
	if dupeMsg != "" {
		return fmt.Errorf("Duplicate job IDs detected in configuration:%s\nEach job must have a unique ID. Please fix the configuration.", dupeMsg)
	}
	if err := structValidator.Validate(d.WithDefaults()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, job := range d.Jobs {
		if err := structValidator.Validate(job); err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}
		if err := job.Schedule.Validate(); err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}
	}
	return nil
}

// Load reads a Document from path using the codec registered for the file's
// content type (JSON, YAML, or XML, by extension).
func Load(path string) (Document, error) {
	contentType := fsutils.LookupContentType(path)
	c, err := codec.GetDefault(contentType)
	if err != nil {
		return Document{}, fmt.Errorf("config: unsupported file type %q: %w", contentType, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = f.Close() }()

	var doc Document
	if err := c.Read(f, &doc); err != nil {
		return Document{}, fmt.Errorf("config: failed to decode %s: %w", path, err)
	}
	doc = doc.WithDefaults()
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// writeTo encodes the document with the codec appropriate for path. Used by
// tests and by tooling that generates example configuration.
func (d Document) writeTo(path string, w io.Writer) error {
	contentType := fsutils.LookupContentType(path)
	c, err := codec.GetDefault(contentType)
	if err != nil {
		return err
	}
	return c.Write(d, w)
}
