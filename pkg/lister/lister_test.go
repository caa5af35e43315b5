package lister

import (
	"context"
	"errors"
	"testing"
)

func TestIsDirectoryMarker(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"a/", true},
		{"a/z/", true},
		{"a/x.json", false},
		{"", false},
		{"/", true},
	}
	for _, tc := range tests {
		if got := IsDirectoryMarker(tc.key); got != tc.want {
			t.Errorf("IsDirectoryMarker(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestMemory_FiltersDirectoryMarkers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("bucket", "a/", "a/x.json", "a/y.json", "a/z/", "b/other.json")

	n, err := m.Count(ctx, "bucket", "a/")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}

	it, err := m.List(ctx, "bucket", "a/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	defer it.Close()

	var keys []string
	if _, err := Take(ctx, it, 10, func(item ItemRef) error {
		keys = append(keys, item.Key)
		return nil
	}); err != nil {
		t.Fatalf("Take: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a/x.json" || keys[1] != "a/y.json" {
		t.Errorf("keys = %v, want [a/x.json a/y.json]", keys)
	}

	counts, lists := m.Calls()
	if counts != 1 || lists != 1 {
		t.Errorf("Calls = (%d, %d), want (1, 1)", counts, lists)
	}
}

func TestSkipTake(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("b", "k0", "k1", "k2", "k3", "k4")

	it, _ := m.List(ctx, "b", "")
	skipped, err := Skip(ctx, it, 2)
	if err != nil || skipped != 2 {
		t.Fatalf("Skip = (%d, %v), want (2, nil)", skipped, err)
	}

	var keys []string
	taken, err := Take(ctx, it, 2, func(item ItemRef) error {
		keys = append(keys, item.Key)
		return nil
	})
	if err != nil || taken != 2 {
		t.Fatalf("Take = (%d, %v), want (2, nil)", taken, err)
	}
	if keys[0] != "k2" || keys[1] != "k3" {
		t.Errorf("keys = %v, want [k2 k3]", keys)
	}

	// Only one item left.
	taken, err = Take(ctx, it, 5, func(ItemRef) error { return nil })
	if err != nil || taken != 1 {
		t.Errorf("Take tail = (%d, %v), want (1, nil)", taken, err)
	}
}

func TestSkip_PastEnd(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("b", "k0", "k1")

	it, _ := m.List(ctx, "b", "")
	skipped, err := Skip(ctx, it, 5)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestTake_StopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("b", "k0", "k1", "k2")

	it, _ := m.List(ctx, "b", "")
	boom := errors.New("boom")
	calls := 0
	taken, err := Take(ctx, it, 3, func(ItemRef) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if taken != 1 {
		t.Errorf("taken = %d, want 1", taken)
	}
}

func TestIterator_ContextCanceled(t *testing.T) {
	m := NewMemory()
	m.Put("b", "k0")

	ctx, cancel := context.WithCancel(context.Background())
	it, _ := m.List(ctx, "b", "")
	cancel()

	if _, err := it.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
