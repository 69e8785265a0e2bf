package tado

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// OAuth2 device-code endpoints and the public client ID Tado issues for
// local integrations.
const (
	AuthURL  = "https://login.tado.com/oauth2/device_authorize"
	TokenURL = "https://login.tado.com/oauth2/token"
	ClientID = "1bb50063-6b0c-4d11-bd99-387f4a91cc46"
)

// OAuthConfig returns the oauth2 configuration for the device-code flow.
func OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: ClientID,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: AuthURL,
			TokenURL:      TokenURL,
		},
		Scopes: []string{"offline_access"},
	}
}

// StartDeviceAuth begins the device-code login flow. The response carries
// the verification URI and user code to present to the user.
func StartDeviceAuth(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := OAuthConfig().DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start device authorization: %w", err)
	}
	return resp, nil
}

// WaitForToken polls the token endpoint until the user approves the login
// or the flow expires.
func WaitForToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	tok, err := OAuthConfig().DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}
	return tok, nil
}

// LoadToken reads a token file written by [SaveToken]. Returns
// [ErrNoToken] when the file does not exist.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("token file %s holds no credentials", path)
	}
	return &tok, nil
}

// SaveToken writes the token to path as owner-readable JSON, creating
// parent directories as needed.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// FileTokenSource returns a token source backed by the token file at path.
//
// Tado rotates the refresh token on every refresh, so each new token is
// written back to the file immediately; losing the newest refresh token
// forces the user through the login flow again. Write failures are logged
// and do not fail the request.
func FileTokenSource(ctx context.Context, path string, logger *slog.Logger) (oauth2.TokenSource, error) {
	tok, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := OAuthConfig().TokenSource(ctx, tok)
	return &savingTokenSource{
		path:   path,
		src:    oauth2.ReuseTokenSource(tok, base),
		logger: logger,
		last:   tok.AccessToken,
	}, nil
}

// savingTokenSource persists each rotated token behind a plain TokenSource
// interface.
type savingTokenSource struct {
	path   string
	src    oauth2.TokenSource
	logger *slog.Logger

	mu   sync.Mutex
	last string // access token already on disk
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn("failed to persist refreshed token",
				"path", s.path,
				"error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
