package renteasy

import (
	"encoding/json"
	"os"
	"sync"
)

// Well-known persisted keys. These match what the web front end and the
// server-side session check expect to find.
const (
	StorageKeyAccessToken  = "renteasy_access_token"
	StorageKeyRefreshToken = "renteasy_refresh_token"
	StorageKeyUserProfile  = "renteasy_user"

	CookieAccessToken  = "re_at"
	CookieRefreshToken = "re_rt"
)

// Storage is the durable key-value mechanism tokens survive process
// restarts in. Implementations must be safe for concurrent use.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// CookieJar mirrors token values into a secondary channel readable by
// server-side request validation. Implementations must be safe for
// concurrent use.
type CookieJar interface {
	SetCookie(name, value string)
	Cookie(name string) (string, bool)
	ClearCookie(name string)
}

// MemoryStorage is a Storage kept entirely in process memory. Useful for
// tests and for environments without a durable store.
type MemoryStorage struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// FileStorage persists keys as a single JSON document on disk. Writes are
// flushed synchronously; reads are served from memory after the initial load.
type FileStorage struct {
	mu   sync.Mutex
	path string
	m    map[string]string
}

// NewFileStorage opens (or creates) a JSON-backed Storage at path. A missing
// or unreadable file starts empty rather than failing; durable storage is a
// fallback, not a source of truth.
func NewFileStorage(path string) *FileStorage {
	s := &FileStorage{path: path, m: make(map[string]string)}
	if data, err := os.ReadFile(path); err == nil {
		// Ignore malformed content; it will be overwritten on the next Set.
		_ = json.Unmarshal(data, &s.m)
	}
	return s
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *FileStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	s.flushLocked()
}

func (s *FileStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	s.flushLocked()
}

func (s *FileStorage) flushLocked() {
	data, err := json.Marshal(s.m)
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, data, 0o600)
}

// MemoryCookieJar is an in-process CookieJar, used in tests and in
// environments where no real cookie channel exists.
type MemoryCookieJar struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryCookieJar returns an empty in-memory CookieJar.
func NewMemoryCookieJar() *MemoryCookieJar {
	return &MemoryCookieJar{m: make(map[string]string)}
}

func (j *MemoryCookieJar) SetCookie(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.m[name] = value
}

func (j *MemoryCookieJar) Cookie(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.m[name]
	return v, ok
}

func (j *MemoryCookieJar) ClearCookie(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.m, name)
}
