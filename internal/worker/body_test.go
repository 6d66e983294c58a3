package worker

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestRandomBodyRangeIsInclusive(t *testing.T) {
	src, err := RandomBody(5, 8)
	if err != nil {
		t.Fatalf("RandomBody() error = %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		n := len(src.next(rng))
		if n < 5 || n > 8 {
			t.Fatalf("body length %d outside [5, 8]", n)
		}
		seen[n] = true
	}
	for n := 5; n <= 8; n++ {
		if !seen[n] {
			t.Errorf("length %d never produced", n)
		}
	}
}

func TestRandomBodyIsDeterministicPerSeed(t *testing.T) {
	src, _ := RandomBody(16, 64)
	a := src.next(rand.New(rand.NewSource(7)))
	b := src.next(rand.New(rand.NewSource(7)))
	if !bytes.Equal(a, b) {
		t.Error("same seed produced different bodies")
	}
}

func TestLoadBodyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.bin")
	if err := os.WriteFile(path, []byte("fixed"), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := LoadBodyFile(path)
	if err != nil {
		t.Fatalf("LoadBodyFile() error = %v", err)
	}
	if !src.Fixed() {
		t.Error("Fixed() = false")
	}
	if got := string(src.next(nil)); got != "fixed" {
		t.Errorf("next() = %q, want fixed", got)
	}

	if _, err := LoadBodyFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
