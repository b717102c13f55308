package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "http://example.test:8000/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestSaveAudio_WritesFileAndReturnsRelativePath(t *testing.T) {
	s := newTestStore(t)

	path, err := s.SaveAudio([]byte("mp3-bytes"))
	if err != nil {
		t.Fatalf("save audio: %v", err)
	}
	if !strings.HasPrefix(path, "storage/audio/") || !strings.HasSuffix(path, ".mp3") {
		t.Fatalf("unexpected path %q", path)
	}

	rel := strings.TrimPrefix(path, "storage/")
	data, err := os.ReadFile(filepath.Join(s.Root(), filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestPublicURL_RewritesRelativePaths(t *testing.T) {
	s := newTestStore(t)

	got := s.PublicURL("storage/audio/x.mp3")
	if got != "http://example.test:8000/storage/audio/x.mp3" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestPublicURL_PassesThroughAbsolute(t *testing.T) {
	s := newTestStore(t)

	abs := "https://cdn.example.com/video.mp4"
	if got := s.PublicURL(abs); got != abs {
		t.Fatalf("absolute url rewritten to %q", got)
	}
	if got := s.PublicURL(""); got != "" {
		t.Fatalf("empty path produced %q", got)
	}
}

func TestSaveVoiceSample_KeepsExtension(t *testing.T) {
	s := newTestStore(t)

	path, err := s.SaveVoiceSample([]byte("wav"), "owner-voice.wav")
	if err != nil {
		t.Fatalf("save voice: %v", err)
	}
	if !strings.HasSuffix(path, ".wav") {
		t.Fatalf("extension lost: %q", path)
	}
}
