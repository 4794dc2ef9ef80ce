package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskStore_UploadAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	url, err := s.Upload(context.Background(), "user1/a.png", []byte("png bytes"), "image/png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "http://localhost:8080/files/user1/a.png" {
		t.Errorf("unexpected public url %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "user1", "a.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png bytes" {
		t.Errorf("unexpected contents %q", data)
	}

	if err := s.Remove(context.Background(), "user1/a.png"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "user1", "a.png")); !os.IsNotExist(err) {
		t.Error("object still present after remove")
	}
}

func TestDiskStore_RejectsTraversal(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := s.Upload(context.Background(), "../outside.png", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestDiskStore_RemoveMissing(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Remove(context.Background(), "user1/never-uploaded.png"); err == nil {
		t.Fatal("expected an error removing a missing object")
	}
}
