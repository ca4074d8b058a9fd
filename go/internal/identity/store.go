// Package identity stores the current user's stable identifier (the student id).
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoUser is returned when no user is signed in.
var ErrNoUser = errors.New("no current user")

// Reader returns the current user's identifier.
type Reader interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Store is a key-value store holding the current user's identifier.
type Store interface {
	Reader
	SetCurrentUserID(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the identifier in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	id string
}

func NewMemoryStore(id string) *MemoryStore {
	return &MemoryStore{id: strings.TrimSpace(id)}
}

func (s *MemoryStore) CurrentUserID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == "" {
		return "", ErrNoUser
	}
	return s.id, nil
}

func (s *MemoryStore) SetCurrentUserID(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("user id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	return nil
}

type fileContents struct {
	StudentID string `yaml:"student_id"`
}

// FileStore persists the identifier in a yaml file. Every read goes to disk so an
// identity change made by another process is seen on the next read.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) CurrentUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoUser
		}
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}

	var contents fileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return "", fmt.Errorf("failed to parse identity file: %w", err)
	}

	id := strings.TrimSpace(contents.StudentID)
	if id == "" {
		return "", ErrNoUser
	}
	return id, nil
}

func (s *FileStore) SetCurrentUserID(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("user id must not be empty")
	}
	return s.write(fileContents{StudentID: id})
}

func (s *FileStore) Clear(ctx context.Context) error {
	return s.write(fileContents{})
}

func (s *FileStore) write(contents fileContents) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(&contents)
	if err != nil {
		return fmt.Errorf("failed to encode identity file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create identity directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace identity file: %w", err)
	}
	return nil
}
