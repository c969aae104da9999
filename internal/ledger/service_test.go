package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/phoenixpulsar/auto-chain-verify/internal/anchor"
	"github.com/phoenixpulsar/auto-chain-verify/internal/author"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/middleware"
)

// fakeRecordStore 内存台账：Create 赋 id/时间戳，List 按 created_at 倒序。
type fakeRecordStore struct {
	records    []MaintenanceRecord
	nextID     int64
	clock      time.Time
	createFail error
	listFail   error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{nextID: 1, clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeRecordStore) Create(ctx context.Context, rec *MaintenanceRecord) error {
	if f.createFail != nil {
		return f.createFail
	}
	rec.ID = f.nextID
	f.nextID++
	f.clock = f.clock.Add(time.Second) // 保证时间戳互不相同
	rec.CreatedAt = f.clock
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRecordStore) ListByVehicle(ctx context.Context, vehicleID int64) ([]MaintenanceRecord, error) {
	if f.listFail != nil {
		return nil, f.listFail
	}
	var out []MaintenanceRecord
	for _, r := range f.records {
		if r.VehicleID == vehicleID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func authorID(id int64) *int64 { return &id }

func TestAddCommitted(t *testing.T) {
	store := newFakeRecordStore()
	stub := &anchor.Stub{Tokens: []string{"tok-1"}}
	svc := NewService(store, stub, Options{RequireVerifiedAuthor: true}, nil)

	res, err := svc.Add(context.Background(), AddInput{
		VehicleID:   42,
		Description: "Oil change",
		AuthorID:    authorID(7),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Outcome != OutcomeCommitted {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if res.Attempt.Status != StatusCommitted {
		t.Fatalf("attempt status=%s", res.Attempt.Status)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}

	rec := res.Records[0]
	if rec.AnchorHash != "tok-1" {
		t.Fatalf("anchor hash=%q", rec.AnchorHash)
	}
	if rec.AuthorID == nil || *rec.AuthorID != 7 {
		t.Fatalf("author id=%v", rec.AuthorID)
	}
	if rec.ServiceDescription != "Oil change" {
		t.Fatalf("description=%q", rec.ServiceDescription)
	}
}

func TestAddAnchorFailureInsertsNothing(t *testing.T) {
	store := newFakeRecordStore()
	// 预置一条历史记录，确认失败后台账原样不动
	if err := store.Create(context.Background(), &MaintenanceRecord{
		VehicleID: 42, ServiceDescription: "Brake pads", AnchorHash: "tok-0",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stub := &anchor.Stub{FailAll: true}
	svc := NewService(store, stub, Options{}, nil)

	res, err := svc.Add(context.Background(), AddInput{VehicleID: 42, Description: "Oil change"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Outcome != OutcomeAnchorFailed {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if res.Attempt.Status != StatusAnchorFailed || res.Attempt.FinishedAt == nil {
		t.Fatalf("attempt=%+v", res.Attempt)
	}
	if res.AnchorHash != "" || res.Records != nil {
		t.Fatalf("unexpected result payload: %+v", res)
	}

	after, _ := store.ListByVehicle(context.Background(), 42)
	if len(after) != 1 || after[0].AnchorHash != "tok-0" {
		t.Fatalf("ledger changed after anchor failure: %+v", after)
	}
}

func TestAddInsertFailureNoCompensation(t *testing.T) {
	store := newFakeRecordStore()
	store.createFail = fmt.Errorf("deadlock")
	stub := &anchor.Stub{Tokens: []string{"tok-1"}}
	svc := NewService(store, stub, Options{}, nil)

	res, err := svc.Add(context.Background(), AddInput{VehicleID: 42, Description: "Oil change"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Outcome != OutcomeInsertFailed {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	// token 已发出但记录未落库：不尝试补偿，只提交了一次
	if res.AnchorHash != "tok-1" {
		t.Fatalf("anchor hash=%q", res.AnchorHash)
	}
	if stub.Calls != 1 {
		t.Fatalf("anchor calls=%d", stub.Calls)
	}
}

func TestAddValidation(t *testing.T) {
	store := newFakeRecordStore()
	stub := &anchor.Stub{}
	svc := NewService(store, stub, Options{RequireVerifiedAuthor: true, MaxDescriptionLen: 16}, nil)

	cases := []struct {
		name string
		in   AddInput
		want error
	}{
		{"empty description", AddInput{VehicleID: 1, Description: "   ", AuthorID: authorID(7)}, ErrEmptyDescription},
		{"too long", AddInput{VehicleID: 1, Description: "a very long service description", AuthorID: authorID(7)}, ErrDescriptionTooLong},
		{"author required", AddInput{VehicleID: 1, Description: "Oil change"}, ErrAuthorRequired},
		{"invalid vehicle", AddInput{Description: "Oil change", AuthorID: authorID(7)}, ErrInvalidVehicle},
	}
	for _, tc := range cases {
		if _, err := svc.Add(context.Background(), tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
	// 校验失败不应触碰存证服务
	if stub.Calls != 0 {
		t.Fatalf("anchor calls=%d", stub.Calls)
	}
}

func TestAddWithoutAuthorWhenPolicyDisabled(t *testing.T) {
	store := newFakeRecordStore()
	stub := &anchor.Stub{Tokens: []string{"tok-1"}}
	svc := NewService(store, stub, Options{RequireVerifiedAuthor: false}, nil)

	res, err := svc.Add(context.Background(), AddInput{VehicleID: 42, Description: "Tire rotation"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Outcome != OutcomeCommitted {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if res.Records[0].AuthorID != nil {
		t.Fatalf("expected null author id")
	}
}

func TestCommittedRecordAppearsFirst(t *testing.T) {
	store := newFakeRecordStore()
	stub := &anchor.Stub{}
	svc := NewService(store, stub, Options{}, nil)

	for _, desc := range []string{"Brake pads", "Oil change", "Battery swap"} {
		res, err := svc.Add(context.Background(), AddInput{VehicleID: 42, Description: desc})
		if err != nil || res.Outcome != OutcomeCommitted {
			t.Fatalf("Add %q: err=%v outcome=%v", desc, err, res.Outcome)
		}
		// 提交后的回读里，新记录排在最前
		if res.Records[0].ServiceDescription != desc {
			t.Fatalf("expected %q first, got %q", desc, res.Records[0].ServiceDescription)
		}
	}

	history := svc.ListForVehicle(context.Background(), 42)
	if history.Degraded {
		t.Fatalf("unexpected degraded history")
	}
	if len(history.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history.Records))
	}
	for i := 1; i < len(history.Records); i++ {
		if history.Records[i-1].CreatedAt.Before(history.Records[i].CreatedAt) {
			t.Fatalf("history not sorted newest-first: %+v", history.Records)
		}
	}
	// 每条成功写入的记录都必须带非空存证 token
	for _, r := range history.Records {
		if r.AnchorHash == "" {
			t.Fatalf("record %d has empty anchor hash", r.ID)
		}
	}
}

func TestListForVehicleDegradesOnStoreFailure(t *testing.T) {
	store := newFakeRecordStore()
	store.listFail = fmt.Errorf("connection refused")
	svc := NewService(store, &anchor.Stub{}, Options{}, nil)

	history := svc.ListForVehicle(context.Background(), 42)
	if !history.Degraded || len(history.Records) != 0 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestAddThroughOpenBreakerFailsFast(t *testing.T) {
	store := newFakeRecordStore()
	stub := &anchor.Stub{FailAll: true}
	breaker := middleware.NewCircuitBreaker("anchor", 1, time.Hour)
	svc := NewService(store, stub, Options{Breaker: breaker}, nil)

	// 第一次失败把熔断器打开
	res, err := svc.Add(context.Background(), AddInput{VehicleID: 42, Description: "Oil change"})
	if err != nil || res.Outcome != OutcomeAnchorFailed {
		t.Fatalf("first add: err=%v outcome=%v", err, res.Outcome)
	}

	// 熔断开启期间快速失败，不再触碰存证服务
	res, err = svc.Add(context.Background(), AddInput{VehicleID: 42, Description: "Oil change"})
	if err != nil || res.Outcome != OutcomeAnchorFailed {
		t.Fatalf("second add: err=%v outcome=%v", err, res.Outcome)
	}
	if stub.Calls != 1 {
		t.Fatalf("anchor calls=%d, want 1", stub.Calls)
	}
}

func TestAuthorAccountNameProjection(t *testing.T) {
	rec := MaintenanceRecord{
		Author: &author.VerifiedAuthor{ID: 7, AccountName: "mechanic.near"},
	}
	if rec.AuthorAccountName() != "mechanic.near" {
		t.Fatalf("projection mismatch: %q", rec.AuthorAccountName())
	}
	if (MaintenanceRecord{}).AuthorAccountName() != "" {
		t.Fatalf("expected empty account for missing author")
	}
}
