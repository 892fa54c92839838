package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestStorageKey(t *testing.T) {
	got := StorageKey("exam-1", "SE123456", "sub-1", "Main.CPP")
	if got != "exam-1/SE123456/sub-1.cpp" {
		t.Errorf("key = %q", got)
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()
	key := StorageKey("exam", "SE000001", "sub", "a.py")

	if err := storage.Put(ctx, key, strings.NewReader("print(1)"), 8); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "exam", "SE000001", "sub.py"))
	if err != nil || string(data) != "print(1)" {
		t.Fatalf("stored file = %q, %v", data, err)
	}
	if ok, err := storage.Exists(ctx, key); err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := storage.Exists(ctx, key); ok {
		t.Error("file still exists after delete")
	}
	if err := storage.Delete(ctx, key); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"../outside.txt", "/etc/passwd", ".."} {
		if err := storage.Put(context.Background(), key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Put(%q) succeeded", key)
		}
	}
}

func TestLocalStorageShortWrite(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := storage.Put(context.Background(), "exam/a.txt", strings.NewReader("abc"), 10); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := os.Stat(filepath.Join(root, "exam", "a.txt")); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}
