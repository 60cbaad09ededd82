package l3

import (
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
	"oss.nandlabs.io/keephive/textutils"
)

// defaultMaxSizeMB is used when a FileConfig enables rotation but doesn't
// specify MaxSize.
const defaultMaxSizeMB = 100

// FileWriter struct
type FileWriter struct {
	mu                                                            sync.Mutex
	errorWriter, warnWriter, infoWriter, debugWriter, traceWriter io.WriteCloser
}

// openWriter returns a plain append-mode file handle, or, if rollType
// requests rotation, a lumberjack.Logger wrapping the same path. RollType is
// matched case-insensitively against "SIZE" and "DAILY"; both get the same
// size-based lumberjack writer (no MaxAge is set), since lumberjack itself
// only rotates on size or explicit Rotate() calls -- internal/logging drives
// the latter on a daily or hourly timer.
func openWriter(path string, rollType string, maxSize int64, compress bool) (io.WriteCloser, error) {
	if path == textutils.EmptyStr {
		return nil, nil
	}

	switch strings.ToUpper(rollType) {
	case "SIZE", "DAILY":
		size := maxSize
		if size <= 0 {
			size = defaultMaxSizeMB
		}
		return &lumberjack.Logger{
			Filename: path,
			MaxSize:  int(size),
			Compress: compress,
		}, nil
	default:
		return os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	}
}

// InitConfig FileWriter
func (fw *FileWriter) InitConfig(w *WriterConfig) {
	var defaultWriter io.WriteCloser
	var err error

	if w.File.DefaultPath != textutils.EmptyStr {
		defaultWriter, err = openWriter(w.File.DefaultPath, w.File.RollType, w.File.MaxSize, w.File.CompressOldFile)
		if err != nil {
			writeLog(os.Stderr, "l3: unable to open default log file:", w.File.DefaultPath, err)
		}
	}
	if w.File.ErrorPath != textutils.EmptyStr {
		fw.errorWriter, err = openWriter(w.File.ErrorPath, w.File.RollType, w.File.MaxSize, w.File.CompressOldFile)
		if err != nil {
			writeLog(os.Stderr, "l3: unable to open error log file:", w.File.ErrorPath, err)
		}
	}
	if w.File.WarnPath != textutils.EmptyStr {
		fw.warnWriter, err = openWriter(w.File.WarnPath, w.File.RollType, w.File.MaxSize, w.File.CompressOldFile)
		if err != nil {
			writeLog(os.Stderr, "l3: unable to open warn log file:", w.File.WarnPath, err)
		}
	}
	if w.File.InfoPath != textutils.EmptyStr {
		fw.infoWriter, err = openWriter(w.File.InfoPath, w.File.RollType, w.File.MaxSize, w.File.CompressOldFile)
		if err != nil {
			writeLog(os.Stderr, "l3: unable to open info log file:", w.File.InfoPath, err)
		}
	}
	if w.File.DebugPath != textutils.EmptyStr {
		fw.debugWriter, err = openWriter(w.File.DebugPath, w.File.RollType, w.File.MaxSize, w.File.CompressOldFile)
		if err != nil {
			writeLog(os.Stderr, "l3: unable to open debug log file:", w.File.DebugPath, err)
		}
	}
	if w.File.TracePath != textutils.EmptyStr {
		fw.traceWriter, err = openWriter(w.File.TracePath, w.File.RollType, w.File.MaxSize, w.File.CompressOldFile)
		if err != nil {
			writeLog(os.Stderr, "l3: unable to open trace log file:", w.File.TracePath, err)
		}
	}
	if defaultWriter != nil {
		if fw.errorWriter == nil {
			fw.errorWriter = defaultWriter
		}
		if fw.warnWriter == nil {
			fw.warnWriter = defaultWriter
		}
		if fw.infoWriter == nil {
			fw.infoWriter = defaultWriter
		}
		if fw.debugWriter == nil {
			fw.debugWriter = defaultWriter
		}
		if fw.traceWriter == nil {
			fw.traceWriter = defaultWriter
		}
	}
}

// DoLog FileWriter
func (fw *FileWriter) DoLog(logMsg *LogMessage) {
	var writer io.Writer
	switch logMsg.Level {
	case Off:
		return
	case Err:
		writer = fw.errorWriter
	case Warn:
		writer = fw.warnWriter
	case Info:
		writer = fw.infoWriter
	case Debug:
		writer = fw.debugWriter
	case Trace:
		writer = fw.traceWriter
	}

	if writer != nil {
		fw.mu.Lock()
		writeLogMsg(writer, logMsg)
		fw.mu.Unlock()
	}
}

// Rotate forces an immediate rotation of every rotation-enabled writer. It
// is a no-op for writers that aren't lumberjack-backed. Intended to be
// called by internal/logging on a daily or hourly boundary, since
// lumberjack itself only rotates on size or an explicit call to this.
func (fw *FileWriter) Rotate() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	seen := make(map[*lumberjack.Logger]struct{})
	var firstErr error
	for _, w := range []io.WriteCloser{fw.errorWriter, fw.warnWriter, fw.infoWriter, fw.debugWriter, fw.traceWriter} {
		lj, ok := w.(*lumberjack.Logger)
		if !ok || lj == nil {
			continue
		}
		if _, ok := seen[lj]; ok {
			continue
		}
		seen[lj] = struct{}{}
		if err := lj.Rotate(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all open file handles.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	// Deduplicate: multiple levels may share the same file.
	closed := make(map[io.WriteCloser]struct{})
	for _, f := range []io.WriteCloser{fw.errorWriter, fw.warnWriter, fw.infoWriter, fw.debugWriter, fw.traceWriter} {
		if f == nil {
			continue
		}
		if _, ok := closed[f]; ok {
			continue
		}
		closed[f] = struct{}{}
		_ = f.Close()
	}
	return nil
}
