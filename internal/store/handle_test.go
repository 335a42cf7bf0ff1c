package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubStore struct {
	Store
	schemaErr error
	closed    bool
}

func (s *stubStore) EnsureSchema(ctx context.Context) error { return s.schemaErr }
func (s *stubStore) Close(ctx context.Context) error { s.closed = true; return nil }
func (s *stubStore) Capabilities() Capabilities { return Capabilities{Backend: "stub"} }

func TestHandleMemoizesInit(t *testing.T) {
	var (
		mu    sync.Mutex
		opens int
	)
	h := NewHandle(func(ctx context.Context) (Store, error) {
		mu.Lock()
		opens++
		mu.Unlock()
		return &stubStore{}, nil
	}, nil)

	var wg sync.WaitGroup
	results := make([]Store, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := h.Init(context.Background())
			if err != nil {
				t.Errorf("init: %v", err)
			}
			results[i] = st
		}(i)
	}
	wg.Wait()

	if opens != 1 {
		t.Fatalf("expected a single open, got %d", opens)
	}
	for _, st := range results {
		if st != results[0] {
			t.Fatal("expected every caller to share one store")
		}
	}
}

func TestHandleInitFailureIsRetryable(t *testing.T) {
	fail := true
	h := NewHandle(func(ctx context.Context) (Store, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return &stubStore{}, nil
	}, nil)

	_, err := h.Init(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	fail = false
	if _, err := h.Init(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestHandleSchemaFailureClosesStore(t *testing.T) {
	stub := &stubStore{schemaErr: errors.New("permission denied")}
	h := NewHandle(func(ctx context.Context) (Store, error) { return stub, nil }, nil)

	if _, err := h.Init(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !stub.closed {
		t.Fatal("expected store closed after schema failure")
	}
	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("close empty handle: %v", err)
	}
}
