package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCleanKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{"questions/q1/a.png", "questions/q1/a.png", false},
		{"/questions//q1/a.png", "questions/q1/a.png", false},
		{"../etc/passwd", "", true},
		{"questions/../../x", "", true},
		{"", "", true},
		{"/", "", true},
	}
	for _, tc := range cases {
		got, err := CleanKey(tc.in)
		if (err != nil) != tc.err || got != tc.want {
			t.Errorf("CleanKey(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := ImageKey("q1", "Diagram.PNG")
	if !strings.HasPrefix(key, "questions/q1/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("key = %s", key)
	}
	got, err := s.Put(ctx, key, strings.NewReader("png-bytes"), -1, "image/png")
	if err != nil || got != key {
		t.Fatalf("put = %s, %v", got, err)
	}
	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "png-bytes" {
		t.Fatalf("read %q", b)
	}
	u, err := s.SignedURL(ctx, key, 0)
	if err != nil || !strings.HasPrefix(u, "file://") {
		t.Fatalf("url = %s, %v", u, err)
	}

	if _, err := s.Get(ctx, "questions/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing blob: %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader("x"), 1, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("escape: %v", err)
	}
}
