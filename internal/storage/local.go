package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Local keeps objects on the filesystem. Its download links point at the
// API's /files route and carry an HS256 token naming the key and expiry.
type Local struct {
	uploadDir string
	baseURL   string
	secret    []byte
	now       func() time.Time
}

var _ Store = (*Local)(nil)

func NewLocal(uploadDir, baseURL string, secret []byte) (*Local, error) {
	if len(secret) == 0 {
		return nil, errors.New("storage - NewLocal: signing secret is required")
	}
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, err
	}
	return &Local{
		uploadDir: uploadDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		secret:    secret,
		now:       time.Now,
	}, nil
}

// GetFilePath maps a storage key to its file. Keys must already be clean
// relative paths: no "." or ".." segments, so one key never names another
// key's file or anything outside the upload directory.
func (s *Local) GetFilePath(key string) (string, error) {
	if path.Clean(key) != key || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("storage - GetFilePath: %w %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.uploadDir, filepath.FromSlash(key)), nil
}

func (s *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	file, err := s.GetFilePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return unavailable("storage - Put - MkdirAll", err)
	}

	out, err := os.Create(file)
	if err != nil {
		slog.Error("Failed to create file", "path", file, "error", err)
		return unavailable("storage - Put - Create", err)
	}
	defer out.Close()
	if _, err = io.Copy(out, bytes.NewReader(data)); err != nil {
		slog.Error("Failed to save file", "path", file, "error", err)
		return unavailable("storage - Put - Copy", err)
	}
	return nil
}

func (s *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	file, err := s.GetFilePath(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("storage - Get", err)
	}
	return data, true, nil
}

func (s *Local) Delete(_ context.Context, key string) error {
	file, err := s.GetFilePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return unavailable("storage - Delete", err)
	}
	// drop the per-image directory once empty
	_ = os.Remove(filepath.Dir(file))
	return nil
}

func (s *Local) PresignedDownloadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttlOrDefault(ttl))),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("storage - PresignedDownloadURL - SignedString: %w", err)
	}
	return s.baseURL + "/files/" + token, nil
}

// Verify checks a download token and returns the storage key it grants.
func (s *Local) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidLink
	}
	return claims.Subject, nil
}
