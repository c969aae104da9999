package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSubmitFailed 存证提交失败（无 token）。单次尝试，内部不重试。
var ErrSubmitFailed = errors.New("anchor submit failed")

// Provider 外部存证服务：提交一次"新记录"意图，成功返回不透明 token。
// 生产实现应替换为真实的分布式账本提交 API；本仓库只带模拟实现。
type Provider interface {
	Submit(ctx context.Context) (string, error)
}

// Simulator 概率模拟实现：0..maxLatency 均匀延迟，按 successRate 成败。
type Simulator struct {
	successRate float64
	maxLatency  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator 创建模拟存证服务。successRate 取值 [0,1]，默认 0.8；
// maxLatency 默认 1s，对齐被替换的占位实现。
func NewSimulator(successRate float64, maxLatency time.Duration) *Simulator {
	if successRate <= 0 || successRate > 1 {
		successRate = 0.8
	}
	if maxLatency <= 0 {
		maxLatency = time.Second
	}
	return &Simulator{
		successRate: successRate,
		maxLatency:  maxLatency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Submit 模拟一次提交。尊重 ctx 取消/超时。
func (s *Simulator) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	latency := time.Duration(s.rng.Float64() * float64(s.maxLatency))
	ok := s.rng.Float64() < s.successRate
	s.mu.Unlock()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if !ok {
		return "", ErrSubmitFailed
	}
	return NewToken(), nil
}

// NewToken 生成不透明存证 token（uuid 熵 + sha256，十六进制带 0x 前缀）。
func NewToken() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return "0x" + hex.EncodeToString(sum[:])
}

// Stub 确定性测试替身：按预设脚本依次成功/失败。
type Stub struct {
	mu      sync.Mutex
	Tokens  []string // 依次返回的 token；空串表示该次失败
	Calls   int
	FailAll bool
}

// Submit 依脚本返回。脚本耗尽后：FailAll 则失败，否则发新 token。
func (s *Stub) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.Calls
	s.Calls++

	if idx < len(s.Tokens) {
		if s.Tokens[idx] == "" {
			return "", ErrSubmitFailed
		}
		return s.Tokens[idx], nil
	}
	if s.FailAll {
		return "", ErrSubmitFailed
	}
	return NewToken(), nil
}
