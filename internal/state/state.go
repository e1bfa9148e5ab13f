package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrPersistence matches every *PersistenceError.
var ErrPersistence = errors.New("cannot persist rotation state")

// PersistenceError is returned when the state file cannot be written.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("writing state file %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Store reads and writes the state file at a fixed path. The file
// holds one output name followed by a newline; an empty or missing
// file means no output is tracked.
type Store struct {
	path string
}

// New returns a store backed by path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored output name. A missing or empty file yields
// "" and no error. Unreadable or garbled content yields "" and an
// error describing the problem; callers treat that as no state.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading state file: %w", err)
	}
	name, err := parse(data)
	if err != nil {
		return "", fmt.Errorf("state file %s: %w", s.path, err)
	}
	return name, nil
}

// Save replaces the stored name. An empty name clears the state.
// The write goes through a temporary file and a rename so readers
// never see a partial record.
func (s *Store) Save(name string) error {
	if name != "" {
		if err := validate(name); err != nil {
			return &PersistenceError{Path: s.path, Err: err}
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	content := ""
	if name != "" {
		content = name + "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func parse(data []byte) (string, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	text = strings.Trim(text, "\r\n")
	if err := validate(text); err != nil {
		return "", err
	}
	return text, nil
}

// validate accepts any name niri can report that fits on one line.
// Spaces are allowed ("Virtual 1"); line breaks and other control
// characters are not.
func validate(name string) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("output name is not valid UTF-8")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("invalid output name %q", name)
		}
	}
	return nil
}
