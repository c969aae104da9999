package view

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/phoenixpulsar/auto-chain-verify/internal/vehicle"
)

type fakeSource struct {
	vehicles map[int64]vehicle.Vehicle
	getCalls int
	listFail error
}

func (f *fakeSource) Get(ctx context.Context, id int64) (*vehicle.Vehicle, error) {
	f.getCalls++
	if v, ok := f.vehicles[id]; ok {
		return &v, nil
	}
	return nil, vehicle.ErrNotFound
}

func (f *fakeSource) ListIDs(ctx context.Context) ([]int64, error) {
	if f.listFail != nil {
		return nil, f.listFail
	}
	ids := make([]int64, 0, len(f.vehicles))
	for id := range f.vehicles {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestBuilderCachesWithinTTL(t *testing.T) {
	src := &fakeSource{vehicles: map[int64]vehicle.Vehicle{
		1: {ID: 1, Make: "Honda", Model: "Civic"},
	}}
	b := NewBuilder(src, time.Minute, nil)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }

	first, err := b.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// 有效期内复用快照，不回源
	current = current.Add(30 * time.Second)
	second, err := b.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if src.getCalls != 1 {
		t.Fatalf("source calls=%d, want 1", src.getCalls)
	}
	if !second.BuiltAt.Equal(first.BuiltAt) {
		t.Fatalf("expected cached snapshot")
	}

	// 过期后重建
	current = current.Add(31 * time.Second)
	third, err := b.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if src.getCalls != 2 {
		t.Fatalf("source calls=%d, want 2", src.getCalls)
	}
	if !third.BuiltAt.After(first.BuiltAt) {
		t.Fatalf("expected rebuilt snapshot")
	}
}

func TestBuilderNotFoundPassthrough(t *testing.T) {
	src := &fakeSource{vehicles: map[int64]vehicle.Vehicle{}}
	b := NewBuilder(src, time.Minute, nil)

	if _, err := b.Get(context.Background(), 404); !errors.Is(err, vehicle.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuilderOnDemandOutsidePaths(t *testing.T) {
	src := &fakeSource{vehicles: map[int64]vehicle.Vehicle{
		1: {ID: 1}, 9: {ID: 9},
	}}
	b := NewBuilder(src, time.Minute, nil)

	ids, fallback := b.Paths(context.Background())
	if !fallback {
		t.Fatalf("expected fallback rendering enabled")
	}
	if len(ids) != 2 {
		t.Fatalf("ids=%v", ids)
	}

	// 往数据源新增一辆不在枚举集合里的车，依然按需可得
	src.vehicles[77] = vehicle.Vehicle{ID: 77, Make: "Tesla"}
	snap, err := b.Get(context.Background(), 77)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Vehicle.Make != "Tesla" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestBuilderPathsDegradeOnFailure(t *testing.T) {
	src := &fakeSource{listFail: fmt.Errorf("connection refused")}
	b := NewBuilder(src, time.Minute, nil)

	ids, fallback := b.Paths(context.Background())
	if len(ids) != 0 || !fallback {
		t.Fatalf("expected empty ids with fallback, got %v %v", ids, fallback)
	}
}
