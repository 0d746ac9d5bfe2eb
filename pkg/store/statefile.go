package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// manualTemplate seeds a state file created by a manual update.
const manualTemplate = `{
  "note": "Set usage_percentage manually or configure cookies.txt for automatic updates",
  "instructions": "Run: claude-usage <percentage>",
  "reset_hours": 5
}`

// StateFile is the JSON document holding the last known usage. Writes are
// atomic; the last writer wins.
type StateFile struct {
	path string
	mu   sync.Mutex
}

// NewStateFile returns a state file rooted at path. Nothing is created until
// the first write.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the location of the state file.
func (f *StateFile) Path() string {
	return f.path
}

// ReadRaw returns the file contents, or nil when the file does not exist.
func (f *StateFile) ReadRaw() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", f.path, err)
	}
	return data, nil
}

// Load parses the state file. A missing file yields (nil, nil); a file that
// is not a JSON object yields an error wrapping usage.ErrMalformedState.
func (f *StateFile) Load() (*usage.State, error) {
	data, err := f.ReadRaw()
	if err != nil || data == nil {
		return nil, err
	}
	st, err := usage.ParseState(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return st, nil
}

// Save overwrites the state file with st.
func (f *StateFile) Save(st *usage.State) error {
	data, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path, data)
}

// SetManual records a manual five-hour utilization. Every other key of an
// existing document is preserved; a missing file is created from a template.
func (f *StateFile) SetManual(percentage int, now time.Time) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("percentage must be between 0 and 100, got %d", percentage)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.ReadRaw()
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte(manualTemplate)
	} else if _, err := usage.ParseState(data); err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}

	data, err = sjson.SetBytes(data, "usage_percentage", percentage)
	if err != nil {
		return fmt.Errorf("failed to set usage_percentage: %w", err)
	}
	data, err = sjson.SetBytes(data, "last_manual_update", usage.FormatTimestamp(now))
	if err != nil {
		return fmt.Errorf("failed to set last_manual_update: %w", err)
	}
	return writeAtomic(f.path, data)
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tempFile.Close()

	if _, err := tempFile.Write(data); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempFile.Name(), path); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
