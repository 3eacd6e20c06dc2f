package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// FileWriter appends to <dir>/YYYY-MM-DD.jsonl, switching files at midnight
// and pointing <dir>/latest at the current day.
type FileWriter struct {
	dir  string
	mu   sync.Mutex
	file *os.File
	day  string
	now  func() time.Time
}

// NewFileWriter opens today's file under dir, creating dir if needed.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}

	fw := &FileWriter{dir: dir, now: time.Now}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.openLocked(fw.now().Format(dayLayout)); err != nil {
		return nil, err
	}
	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if day := fw.now().Format(dayLayout); day != fw.day || fw.file == nil {
		if err := fw.openLocked(day); err != nil {
			return 0, err
		}
	}
	return fw.file.Write(p)
}

// Close closes the current file.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

func (fw *FileWriter) openLocked(day string) error {
	if fw.file != nil {
		fw.file.Close()
	}

	name := day + ".jsonl"
	f, err := os.OpenFile(filepath.Join(fw.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	fw.file = f
	fw.day = day

	// Best effort: swap the symlink via rename so readers never see it missing.
	link := filepath.Join(fw.dir, "latest")
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err == nil {
		_ = os.Rename(tmp, link)
	}
	return nil
}

var logFilePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

// Cleanup removes daily log files older than retentionDays.
func Cleanup(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !logFilePattern.MatchString(name) {
			continue
		}
		day, err := time.Parse(dayLayout, name[:len(dayLayout)])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
