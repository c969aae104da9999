package ledger

import (
	"fmt"
	"time"
)

// Status 单次写入尝试的状态枚举。
type Status string

const (
	StatusIdle         Status = "idle"          // 初始
	StatusAnchoring    Status = "anchoring"     // 等待存证服务返回 token
	StatusInserting    Status = "inserting"     // token 已到手，落库中
	StatusCommitted    Status = "committed"     // 落库成功（终态）
	StatusAnchorFailed Status = "anchor_failed" // 存证失败，未落库（终态）
	StatusInsertFailed Status = "insert_failed" // 落库失败，token 成为孤儿（终态）
)

// AllowTransition 写入流水线的允许流转关系。
// 不变量：不经过 anchoring 拿到 token 就不可能进入 inserting。
var AllowTransition = map[Status][]Status{
	StatusIdle:      {StatusAnchoring},
	StatusAnchoring: {StatusInserting, StatusAnchorFailed},
	StatusInserting: {StatusCommitted, StatusInsertFailed},
	// 终态：不允许再流转
	StatusCommitted:    {},
	StatusAnchorFailed: {},
	StatusInsertFailed: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal 是否为终态。
func (s Status) Terminal() bool {
	allowed, ok := AllowTransition[s]
	return ok && len(allowed) == 0
}

// Attempt 一次写入尝试的过程记录（请求作用域，不落库）。
type Attempt struct {
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewAttempt 创建处于 idle 的写入尝试。
func NewAttempt(now time.Time) *Attempt {
	return &Attempt{Status: StatusIdle, StartedAt: now}
}

// Transition 应用状态变更；进入终态时记录结束时间。
func (a *Attempt) Transition(to Status, now time.Time) error {
	if a == nil {
		return fmt.Errorf("attempt is nil")
	}
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("invalid attempt transition: %s -> %s", a.Status, to)
	}

	a.Status = to
	if to.Terminal() && a.FinishedAt == nil {
		t := now
		a.FinishedAt = &t
	}
	return nil
}
