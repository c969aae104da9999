package middleware

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context) bool
}

// SlidingWindow 滑动窗口限流器
type SlidingWindow struct {
	requests    []time.Time   // 请求时间记录
	window      time.Duration // 时间窗口
	maxRequests int           // 最大请求数
	mu          sync.Mutex
}

// NewSlidingWindow 创建滑动窗口限流器
func NewSlidingWindow(window time.Duration, maxRequests int) *SlidingWindow {
	return &SlidingWindow{
		requests:    make([]time.Time, 0),
		window:      window,
		maxRequests: maxRequests,
	}
}

// Allow 检查是否允许请求
func (sw *SlidingWindow) Allow(ctx context.Context) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-sw.window)

	// 清理窗口外的请求
	validRequests := make([]time.Time, 0)
	for _, reqTime := range sw.requests {
		if reqTime.After(windowStart) {
			validRequests = append(validRequests, reqTime)
		}
	}
	sw.requests = validRequests

	// 检查是否超过限制
	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// KeyedLimiter 按 key（客户端/账号）维护独立限流器。
// 写接口使用：key 为账号名或客户端地址。
type KeyedLimiter struct {
	limiters map[string]RateLimiter
	factory  func() RateLimiter
	mu       sync.Mutex
}

// NewKeyedLimiter 创建按 key 限流器；factory 决定每个 key 的限流策略。
func NewKeyedLimiter(factory func() RateLimiter) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]RateLimiter),
		factory:  factory,
	}
}

// Allow 检查指定 key 是否允许请求
func (kl *KeyedLimiter) Allow(ctx context.Context, key string) bool {
	kl.mu.Lock()
	limiter, ok := kl.limiters[key]
	if !ok {
		limiter = kl.factory()
		kl.limiters[key] = limiter
	}
	kl.mu.Unlock()

	return limiter.Allow(ctx)
}
