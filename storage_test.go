package renteasy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()

	if _, ok := s.Get("missing"); ok {
		t.Error("missing key should not be found")
	}

	s.Set("k", "v")
	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Errorf("Get = %q, %v", v, ok)
	}

	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Error("deleted key should not be found")
	}
}

func TestFileStoragePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first := NewFileStorage(path)
	first.Set(StorageKeyAccessToken, "token-1")
	first.Set(StorageKeyRefreshToken, "refresh-1")

	// A second instance simulates a fresh process start.
	second := NewFileStorage(path)
	if v, ok := second.Get(StorageKeyAccessToken); !ok || v != "token-1" {
		t.Errorf("access token after restart = %q, %v", v, ok)
	}

	second.Delete(StorageKeyAccessToken)
	third := NewFileStorage(path)
	if _, ok := third.Get(StorageKeyAccessToken); ok {
		t.Error("deleted key should not survive restart")
	}
	if v, ok := third.Get(StorageKeyRefreshToken); !ok || v != "refresh-1" {
		t.Errorf("refresh token after delete = %q, %v", v, ok)
	}
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Unreadable state starts empty instead of failing.
	s := NewFileStorage(path)
	if _, ok := s.Get(StorageKeyAccessToken); ok {
		t.Error("corrupt file should load as empty storage")
	}
	s.Set("k", "v")
	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Errorf("Get after corrupt load = %q, %v", v, ok)
	}
}

func TestMemoryCookieJar(t *testing.T) {
	j := NewMemoryCookieJar()

	if _, ok := j.Cookie(CookieAccessToken); ok {
		t.Error("missing cookie should not be found")
	}

	j.SetCookie(CookieAccessToken, "tok")
	if v, ok := j.Cookie(CookieAccessToken); !ok || v != "tok" {
		t.Errorf("Cookie = %q, %v", v, ok)
	}

	j.ClearCookie(CookieAccessToken)
	if _, ok := j.Cookie(CookieAccessToken); ok {
		t.Error("cleared cookie should not be found")
	}
}
