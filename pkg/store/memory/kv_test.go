package memory

import (
	"context"
	"reflect"
	"testing"
)

func TestKVGetByIDsPreservesOrder(t *testing.T) {
	t.Parallel()
	kv := NewKV[string]()
	ctx := context.Background()

	err := kv.Upsert(ctx, map[string]string{"a": "alpha", "b": "beta"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	items, err := kv.GetByIDs(ctx, []string{"b", "missing", "a"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	if items[0] == nil || *items[0] != "beta" {
		t.Fatalf("items[0] = %v, want beta", items[0])
	}
	if items[1] != nil {
		t.Fatalf("items[1] = %v, want nil for a missing id", items[1])
	}
	if items[2] == nil || *items[2] != "alpha" {
		t.Fatalf("items[2] = %v, want alpha", items[2])
	}

	ids, err := kv.AllIDs(ctx)
	if err != nil {
		t.Fatalf("AllIDs: %v", err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestKVGetByIDReturnsCopy(t *testing.T) {
	t.Parallel()
	kv := NewKV[[]int]()
	ctx := context.Background()

	if err := kv.Upsert(ctx, map[string][]int{"a": {1, 2}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	item, err := kv.GetByID(ctx, "a")
	if err != nil || item == nil {
		t.Fatalf("GetByID = %v, %v", item, err)
	}
	if missing, err := kv.GetByID(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("GetByID(nope) = %v, %v, want nil, nil", missing, err)
	}

	if err := kv.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	ids, err := kv.AllIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("AllIDs after Drop = %v, %v", ids, err)
	}
}
