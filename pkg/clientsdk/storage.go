package clientsdk

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentauth/agentauth/pkg/cryptox"
)

// SessionData is what SignIn persists and HandleCallback consumes: the PKCE
// verifier and the state nonce for one in-flight authorization attempt.
type SessionData struct {
	Verifier string `json:"verifier"`
	State    string `json:"state"`
}

// Store persists SessionData between SignIn and HandleCallback. Load returns
// nil when nothing is stored.
type Store interface {
	Save(data SessionData) error
	Load() (*SessionData, error)
	Clear() error
}

// MemoryStore is the in-process fallback Store.
type MemoryStore struct {
	mu   sync.Mutex
	data *SessionData
}

func (s *MemoryStore) Save(data SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = &data
	return nil
}

func (s *MemoryStore) Load() (*SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	copied := *s.data
	return &copied, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// FileStore keeps SessionData in a JSON file scoped to one client and
// redirect URI, so concurrent flows for different clients do not clobber
// each other.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store under dir. The file name is
// derived from the scope key so distinct flows stay separate.
func NewFileStore(dir, scopeKey string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	name := "session-" + cryptox.FingerprintToken(scopeKey)[:16] + ".json"
	return &FileStore{path: filepath.Join(dir, name)}, nil
}

func (s *FileStore) Save(data SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *FileStore) Load() (*SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// defaultStore prefers a file-backed store under the user cache dir and
// degrades to memory when the filesystem is unavailable, logging the
// downgrade so the weaker persistence is visible.
func defaultStore(scopeKey string, logger *slog.Logger) Store {
	base, err := os.UserCacheDir()
	if err == nil {
		fs, ferr := NewFileStore(filepath.Join(base, "agentauth"), scopeKey)
		if ferr == nil {
			return fs
		}
		err = ferr
	}

	logger.Warn("file-backed session store unavailable, falling back to in-memory storage", "error", err)
	return &MemoryStore{}
}
