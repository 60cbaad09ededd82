// Package logging translates keephive's configuration document into an
// l3.LogConfig and drives time-based log rotation, since l3's file writers
// only rotate on size by default.
package logging

import (
	"path/filepath"
	"strings"
	"time"

	"oss.nandlabs.io/keephive/internal/config"
	"oss.nandlabs.io/keephive/l3"
)

// Configure applies doc's logging settings to l3. Safe to call repeatedly;
// l3.Configure replaces (and closes) its previous writers on each call.
func Configure(doc config.Document) {
	rollType := "NEVER"
	switch doc.LogRotation {
	case config.LogRotationDaily, config.LogRotationHourly:
		rollType = "SIZE"
	}

	l3.Configure(&l3.LogConfig{
		Format:     "text",
		DefaultLvl: strings.ToUpper(doc.LogLevel),
		Writers: []*l3.WriterConfig{
			{
				File: &l3.FileConfig{
					DefaultPath: filepath.Join(doc.LogDirectory, "keephive.log"),
					ErrorPath:   filepath.Join(doc.LogDirectory, "keephive-error.log"),
					RollType:    rollType,
					MaxSize:     100,
				},
			},
			{
				Console: &l3.ConsoleConfig{},
			},
		},
	})
}

// RunRotationTicker blocks, calling l3.RotateFiles() at every boundary
// implied by rotation (daily or hourly), until stop is closed. Intended to
// run in its own goroutine for the lifetime of the daemon.
func RunRotationTicker(rotation config.LogRotationKind, stop <-chan struct{}) {
	if rotation == config.LogRotationNever || rotation == "" {
		return
	}

	for {
		wait := durationUntilNextBoundary(rotation, time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			_ = l3.RotateFiles()
		}
	}
}

func durationUntilNextBoundary(rotation config.LogRotationKind, now time.Time) time.Duration {
	var next time.Time
	switch rotation {
	case config.LogRotationHourly:
		next = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
	default: // Daily
		next = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	}
	return next.Sub(now)
}
