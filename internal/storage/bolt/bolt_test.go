package bolt

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goodtune/ktime/internal/storage"
)

func TestStoreGetSetDelete(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if _, err := store.Get(ctx, "app_time_limit"); !storage.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.Set(ctx, "app_time_limit", `{"enabled":true}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, err := store.Get(ctx, "app_time_limit")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"enabled":true}` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := store.Delete(ctx, "app_time_limit"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "app_time_limit"); !storage.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, "never-written"); err != nil {
		t.Fatalf("delete of missing key should succeed, got %v", err)
	}
}

func TestStoreListPrefix(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, key := range []string{
		"app_usage_data_2024-01-03",
		"app_usage_data_2024-01-01",
		"app_time_limit",
		"app_usage_data_2024-01-02",
	} {
		if err := store.Set(ctx, key, "{}"); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := store.List(ctx, "app_usage_data_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []string{
		"app_usage_data_2024-01-01",
		"app_usage_data_2024-01-02",
		"app_usage_data_2024-01-03",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("list = %v, want %v", keys, want)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ktime.bolt")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(context.Background(), "app_usage_data_2024-01-01", `{"total_minutes":5}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	value, err := reopened.Get(context.Background(), "app_usage_data_2024-01-01")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if value != `{"total_minutes":5}` {
		t.Fatalf("unexpected value after reopen %q", value)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ktime.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
