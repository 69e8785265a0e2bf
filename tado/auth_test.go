package tado

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/oauth2"
)

// TestSaveLoadToken verifies a token survives a write and read cycle
func TestSaveLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	tok := &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
	}
	if err := SaveToken(path, tok); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	loaded, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if loaded.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q, want %q", loaded.AccessToken, "access-1")
	}
	if loaded.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want %q", loaded.RefreshToken, "refresh-1")
	}
}

// TestSaveTokenPermissions verifies the token file is owner-only
func TestSaveTokenPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("token file mode = %v, want 0600", got)
	}
}

// TestSaveTokenCreatesDirectory verifies missing parent directories are created
func TestSaveTokenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "token.json")
	if err := SaveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if _, err := LoadToken(path); err != nil {
		t.Errorf("LoadToken() error = %v", err)
	}
}

// TestLoadTokenMissing verifies a missing file maps to ErrNoToken
func TestLoadTokenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	if _, err := LoadToken(path); !errors.Is(err, ErrNoToken) {
		t.Errorf("LoadToken() error = %v, want ErrNoToken", err)
	}
}

// TestLoadTokenEmpty verifies a token file without credentials is rejected
func TestLoadTokenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadToken(path); err == nil {
		t.Error("LoadToken() error = nil, want error for empty token")
	}
}

// rotatingSource hands out a different token on each call, mimicking
// Tado's rotating refresh tokens.
type rotatingSource struct {
	tokens []*oauth2.Token
	next   int
}

func (r *rotatingSource) Token() (*oauth2.Token, error) {
	tok := r.tokens[r.next]
	if r.next < len(r.tokens)-1 {
		r.next++
	}
	return tok, nil
}

// TestSavingTokenSource_PersistsRotatedTokens verifies each new token is
// written back to disk so rotated refresh tokens are never lost
func TestSavingTokenSource_PersistsRotatedTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	src := &rotatingSource{tokens: []*oauth2.Token{
		{AccessToken: "access-1", RefreshToken: "refresh-1"},
		{AccessToken: "access-2", RefreshToken: "refresh-2"},
	}}
	sts := &savingTokenSource{path: path, src: src, logger: testLogger()}

	if _, err := sts.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	loaded, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken() after first token error = %v", err)
	}
	if loaded.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want %q", loaded.RefreshToken, "refresh-1")
	}

	if _, err := sts.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	loaded, err = LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken() after rotation error = %v", err)
	}
	if loaded.RefreshToken != "refresh-2" {
		t.Errorf("RefreshToken = %q, want %q", loaded.RefreshToken, "refresh-2")
	}
}

// TestSavingTokenSource_SkipsUnchangedToken verifies an unchanged token does
// not rewrite the file
func TestSavingTokenSource_SkipsUnchangedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	tok := &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"}
	src := &rotatingSource{tokens: []*oauth2.Token{tok}}
	sts := &savingTokenSource{path: path, src: src, logger: testLogger(), last: "access-1"}

	if _, err := sts.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("token file written for unchanged token, want no write")
	}
}
