package sink

import (
	"fmt"
	"os"
	"path/filepath"
)

// dailyFile implements the not_opened -> open -> rotated -> open state
// machine: the file is named after the date it was opened for, and
// ensure reopens it under a new name when the current system date no
// longer matches.
type dailyFile struct {
	dir      string
	suffix   string // e.g. "_quotes.json"
	date     string // filename date currently open, "" when not_opened
	file     *os.File
	onCreate func(f *os.File) error // called only when the file did not already exist

	filesOpened int64 // count of ensure() calls that opened a file, for metrics.WriterStats
}

func newDailyFile(dir, suffix string, onCreate func(f *os.File) error) *dailyFile {
	return &dailyFile{dir: dir, suffix: suffix, onCreate: onCreate}
}

// ensure opens or rotates the file for date, returning the path of the
// file that was just rotated away (empty if no rotation happened this
// call).
func (d *dailyFile) ensure(date string) (rotatedPath string, err error) {
	if d.date == date && d.file != nil {
		return "", nil
	}

	rotated := ""
	if d.file != nil {
		rotated = d.path(d.date)
		if err := d.file.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", rotated, err)
		}
		d.file = nil
	}

	path := d.path(date)
	existed := true
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		existed = false
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	if !existed && d.onCreate != nil {
		if err := d.onCreate(f); err != nil {
			f.Close()
			return "", fmt.Errorf("initialize %s: %w", path, err)
		}
	}

	d.file = f
	d.date = date
	d.filesOpened++
	return rotated, nil
}

func (d *dailyFile) path(date string) string {
	return filepath.Join(d.dir, date+d.suffix)
}

func (d *dailyFile) close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
