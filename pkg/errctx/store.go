package errctx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// timestampFormat names each record file by the UTC creation time of the
// failure occurrence it captures.
const timestampFormat = "20060102T150405.000000000Z"

// ErrNotFound is returned when no persisted record matches a reference.
var ErrNotFound = errors.New("error context not found")

// Store persists one JSON record per failure occurrence under a fixed logs
// directory. Records are appended to in place by each tier and never deleted
// by the pipeline.
type Store struct {
	dir string
}

// DefaultDir returns the default logs directory, honouring RESCUE_BASE_PATH.
func DefaultDir() (string, error) {
	if basePath := os.Getenv("RESCUE_BASE_PATH"); basePath != "" {
		return filepath.Join(basePath, "errors"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".rescue", "errors"), nil
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create logs directory")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the logs directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the record file path for the given context.
func (s *Store) Path(ec *ErrorContext) string {
	name := "error-" + ec.CreatedAt.UTC().Format(timestampFormat) + ".json"
	return filepath.Join(s.dir, name)
}

// Create writes the initial record for a fresh failure occurrence and returns
// its path. Creating the same occurrence twice is an error.
func (s *Store) Create(ec *ErrorContext) (string, error) {
	path := s.Path(ec)

	data, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal error context")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create error record %s", path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", errors.Wrap(err, "failed to write error record")
	}
	return path, nil
}

// Load reads one record file.
func (s *Store) Load(path string) (*ErrorContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to read error record %s", path)
	}

	ec := &ErrorContext{}
	if err := json.Unmarshal(data, ec); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal error record %s", path)
	}
	return ec, nil
}

// Append loads the record at path, appends exactly one recovery attempt under
// the record invariants, and writes it back in place under a lock file. The
// updated context is returned.
func (s *Store) Append(path string, attempt RecoveryAttempt) (*ErrorContext, error) {
	unlock, err := s.lock(path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ec, err := s.Load(path)
	if err != nil {
		return nil, err
	}

	if err := ec.AppendAttempt(attempt); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal error context")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write error record")
	}
	return ec, nil
}

// List returns all persisted records ordered by occurrence time.
func (s *Store) List() ([]*ErrorContext, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read logs directory")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "error-") || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]*ErrorContext, 0, len(names))
	for _, name := range names {
		ec, err := s.Load(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, ec)
	}
	return records, nil
}

// Find resolves a reference to a persisted record. The reference may be a
// record file name, a fragment of the timestamped name, or an ID prefix.
func (s *Store) Find(ref string) (*ErrorContext, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	for _, ec := range records {
		name := filepath.Base(s.Path(ec))
		if name == ref || strings.Contains(name, ref) || strings.HasPrefix(ec.ID, ref) {
			return ec, nil
		}
	}
	return nil, ErrNotFound
}

// lock serialises record mutation between the driver and adapter CLI
// processes with an exclusive lock file next to the record.
func (s *Store) lock(path string) (func(), error) {
	lockPath := path + ".lock"
	deadline := time.Now().Add(5 * time.Second)

	for {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return func() {
				lockFile.Close()
				os.Remove(lockPath)
			}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "failed to create lock file")
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("timed out waiting for lock on %s", path)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
