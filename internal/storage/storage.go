// Package storage keeps uploaded and generated artifacts on local disk and
// rewrites their paths into absolute URLs external services can fetch.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	voiceDir  = "voice_samples"
	avatarDir = "avatars"
	audioDir  = "audio"
)

type Store struct {
	root    string
	baseURL string
}

// New creates the artifact directories under root. baseURL is the service's
// public address used to build absolute links.
func New(root, baseURL string) (*Store, error) {
	for _, d := range []string{voiceDir, avatarDir, audioDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("storage mkdir: %w", err)
		}
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) SaveVoiceSample(data []byte, origName string) (string, error) {
	return s.save(voiceDir, data, ext(origName, ".mp3"))
}

func (s *Store) SaveAvatar(data []byte, origName string) (string, error) {
	return s.save(avatarDir, data, ext(origName, ".png"))
}

func (s *Store) SaveAudio(data []byte) (string, error) {
	return s.save(audioDir, data, ".mp3")
}

// save writes the file under a fresh uuid name and returns the repo-relative
// path "storage/<dir>/<uuid><ext>" that gets persisted on the record.
func (s *Store) save(dir string, data []byte, extension string) (string, error) {
	name := uuid.NewString() + extension
	full := filepath.Join(s.root, dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("storage write: %w", err)
	}
	return filepath.ToSlash(filepath.Join("storage", dir, name)), nil
}

// PublicURL turns a stored path into an absolute, externally fetchable URL.
// Already-absolute URLs (e.g. a cloned voice id host or a provider CDN link)
// pass through untouched.
func (s *Store) PublicURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.baseURL + "/" + strings.TrimLeft(filepath.ToSlash(path), "/")
}

func ext(name, fallback string) string {
	if e := filepath.Ext(name); e != "" {
		return e
	}
	return fallback
}
