package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileLayoutStore_GetMissing(t *testing.T) {
	s := NewFileLayoutStore(t.TempDir())

	fields, ok, err := s.Get(context.Background(), "job:details")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no stored layout")
	}
	if fields != nil {
		t.Errorf("expected nil fields, got %v", fields)
	}
}

func TestFileLayoutStore_SetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := NewFileLayoutStore(dir)

	want := []string{"title", "status", "custom:region"}
	if err := s.Set(ctx, "job:details", want); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A second store instance reads what the first one wrote.
	got, ok, err := NewFileLayoutStore(dir).Get(ctx, "job:details")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected stored layout")
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFileLayoutStore_EmptyLayoutIsStored(t *testing.T) {
	ctx := context.Background()
	s := NewFileLayoutStore(t.TempDir())

	if err := s.Set(ctx, "task:details", nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, "task:details")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Error("expected an explicitly emptied layout to be stored")
	}
	if len(got) != 0 {
		t.Errorf("expected empty layout, got %v", got)
	}
}

func TestFileLayoutStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewFileLayoutStore(t.TempDir())

	if err := s.Set(ctx, "job:details", []string{"title"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "job:header", []string{"status"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Reset(ctx, "job:details"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "job:details"); ok {
		t.Error("expected job:details to be reset")
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "job:header" {
		t.Errorf("expected only job:header to remain, got %v", keys)
	}

	// Resetting a missing key is not an error.
	if err := s.Reset(ctx, "missing:key"); err != nil {
		t.Errorf("unexpected error resetting missing key: %v", err)
	}
}

func TestFileLayoutStore_SeparateStoresKeepEachOthersWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, b := NewFileLayoutStore(dir), NewFileLayoutStore(dir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = a.Set(ctx, fmt.Sprintf("job:a%d", i), []string{"job_title"})
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = b.Set(ctx, fmt.Sprintf("task:b%d", i), []string{"title"})
		}(i)
	}
	wg.Wait()

	keys, err := a.Keys(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 20 {
		t.Errorf("expected 20 layouts, got %d: %v", len(keys), keys)
	}
}

func TestFileLayoutStore_RejectsEmptyKey(t *testing.T) {
	s := NewFileLayoutStore(t.TempDir())
	if err := s.Set(context.Background(), " ", []string{"a"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestFileLayoutStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "layouts.yaml"), []byte("layouts: [unclosed"), 0o600); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}
	s := NewFileLayoutStore(dir)
	if _, _, err := s.Get(context.Background(), "job:details"); err == nil {
		t.Error("expected parse error for corrupt layouts file")
	}
}

func TestRedisLayoutStore_Integration(t *testing.T) {
	url := os.Getenv("STAFFDESK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STAFFDESK_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisLayoutStore(ctx, url)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}

	key := "test:" + t.Name()
	defer func() { _ = s.Reset(ctx, key) }()

	if err := s.Set(ctx, key, []string{"a", "b"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected layout %v", got)
	}
}
