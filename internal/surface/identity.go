package surface

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// IdentityStore remembers which order belongs to this customer across restarts
type IdentityStore interface {
	// Load returns the saved order id, or "" when none is saved
	Load() (string, error)
	Save(orderID string) error
	Clear() error
}

type identityFile struct {
	OrderID string    `yaml:"order_id"`
	SavedAt time.Time `yaml:"saved_at"`
}

// FileIdentityStore keeps the identity in a small YAML file
type FileIdentityStore struct {
	path string
	mu   sync.Mutex
}

// NewFileIdentityStore stores the identity at path
func NewFileIdentityStore(path string) *FileIdentityStore {
	return &FileIdentityStore{path: path}
}

// DefaultIdentityPath is <user config dir>/coffee-queue/identity.yaml
func DefaultIdentityPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "coffee-queue", "identity.yaml"), nil
}

// Path returns the backing file
func (s *FileIdentityStore) Path() string {
	return s.path
}

func (s *FileIdentityStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}

	var f identityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse identity %s: %w", s.path, err)
	}
	return f.OrderID, nil
}

func (s *FileIdentityStore) Save(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(identityFile{OrderID: orderID, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileIdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove identity: %w", err)
	}
	return nil
}

// MemoryIdentityStore keeps the identity for the life of the process
type MemoryIdentityStore struct {
	mu sync.Mutex
	id string
}

func (s *MemoryIdentityStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryIdentityStore) Save(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = orderID
	return nil
}

func (s *MemoryIdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	return nil
}
