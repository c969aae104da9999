package author

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

type fakeLookup struct {
	authors map[string]*VerifiedAuthor
	calls   int
	fail    error
}

func (f *fakeLookup) FindByAccount(ctx context.Context, account string) (*VerifiedAuthor, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	if a, ok := f.authors[account]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func TestResolveAnonymousSkipsStore(t *testing.T) {
	lookup := &fakeLookup{}
	svc := NewService(lookup, nil)

	for _, account := range []string{"", "   "} {
		res := svc.Resolve(context.Background(), account)
		if res.State != StateUnauthenticated {
			t.Fatalf("account %q: expected unauthenticated, got %s", account, res.State)
		}
		if res.CanWrite() {
			t.Fatalf("unauthenticated must not allow write")
		}
	}
	// 匿名身份不允许发起任何存储查询
	if lookup.calls != 0 {
		t.Fatalf("expected 0 lookup calls, got %d", lookup.calls)
	}
}

func TestResolveUnverified(t *testing.T) {
	lookup := &fakeLookup{authors: map[string]*VerifiedAuthor{}}
	svc := NewService(lookup, nil)

	res := svc.Resolve(context.Background(), "alice.near")
	if res.State != StateUnverified {
		t.Fatalf("expected unverified, got %s", res.State)
	}
	if res.Author != nil || res.CanWrite() {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveVerified(t *testing.T) {
	lookup := &fakeLookup{authors: map[string]*VerifiedAuthor{
		"mechanic.near": {ID: 7, AccountName: "mechanic.near", Email: "shop@example.com"},
	}}
	svc := NewService(lookup, nil)

	res := svc.Resolve(context.Background(), "mechanic.near")
	if res.State != StateVerified || !res.CanWrite() {
		t.Fatalf("expected verified, got %+v", res)
	}
	if res.Author == nil || res.Author.ID != 7 {
		t.Fatalf("unexpected author: %+v", res.Author)
	}
}

func TestResolveIndeterminateOnStoreFailure(t *testing.T) {
	lookup := &fakeLookup{fail: fmt.Errorf("connection reset")}
	svc := NewService(lookup, nil)

	// 瞬时故障不能被当成"确认未认证"
	res := svc.Resolve(context.Background(), "mechanic.near")
	if res.State != StateIndeterminate {
		t.Fatalf("expected indeterminate, got %s", res.State)
	}
	if res.CanWrite() {
		t.Fatalf("indeterminate must not allow write")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	lookup := &fakeLookup{authors: map[string]*VerifiedAuthor{
		"mechanic.near": {ID: 7, AccountName: "mechanic.near"},
	}}
	svc := NewService(lookup, nil)

	first := svc.Resolve(context.Background(), "mechanic.near")
	second := svc.Resolve(context.Background(), "mechanic.near")
	if first.State != second.State || first.Author.ID != second.Author.ID {
		t.Fatalf("resolution not stable: %+v vs %+v", first, second)
	}
}
