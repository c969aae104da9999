package view

import (
	"context"
	"sync"
	"time"

	"github.com/phoenixpulsar/auto-chain-verify/internal/common/logger"
	"github.com/phoenixpulsar/auto-chain-verify/internal/vehicle"
)

// VehicleSource 详情视图的数据来源，由 vehicle.Service 实现。
type VehicleSource interface {
	Get(ctx context.Context, id int64) (*vehicle.Vehicle, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// Snapshot 车辆详情静态快照。BuiltAt 之后超过有效期即视为过期，
// 下一次请求重建。
type Snapshot struct {
	Vehicle vehicle.Vehicle
	BuiltAt time.Time
}

// Builder 详情视图构建器：按固定间隔重建快照（对齐原 revalidate=60 契约），
// 不在预枚举集合里的 id 照常按需构建（fallback 渲染）。
type Builder struct {
	src VehicleSource
	ttl time.Duration
	now func() time.Time
	log logger.Logger

	mu    sync.Mutex
	cache map[int64]Snapshot
}

// NewBuilder 创建构建器；ttl<=0 取 60s。
func NewBuilder(src VehicleSource, ttl time.Duration, log logger.Logger) *Builder {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Builder{
		src:   src,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
		cache: make(map[int64]Snapshot),
	}
}

// Get 返回车辆快照；命中且未过期直接复用，否则重建。
// 车辆不存在向上返回 vehicle.ErrNotFound，由调用方转成"页面不存在"。
func (b *Builder) Get(ctx context.Context, id int64) (*Snapshot, error) {
	now := b.now()

	b.mu.Lock()
	if snap, ok := b.cache[id]; ok && now.Sub(snap.BuiltAt) < b.ttl {
		b.mu.Unlock()
		return &snap, nil
	}
	b.mu.Unlock()

	v, err := b.src.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{Vehicle: *v, BuiltAt: now}
	b.mu.Lock()
	b.cache[id] = snap
	b.mu.Unlock()
	return &snap, nil
}

// Paths 枚举预渲染的车辆 id。fallback 恒为 true：集合之外的 id
// 一律按需构建而不是直接 404。存储故障记日志并退化为空集合。
func (b *Builder) Paths(ctx context.Context) (ids []int64, fallback bool) {
	ids, err := b.src.ListIDs(ctx)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).Warn("path enumeration failed, falling back to on-demand rendering")
		}
		return []int64{}, true
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, true
}
