package vehicle

import (
	"context"
	"errors"

	"github.com/phoenixpulsar/auto-chain-verify/internal/common/logger"
	"gorm.io/gorm"
)

// ErrNotFound 车辆不存在（对调用方而言是可恢复的空态，不是故障）。
var ErrNotFound = errors.New("vehicle not found")

// Store 车辆读取接口，由 *Repo 实现；测试侧用内存假实现。
type Store interface {
	Search(ctx context.Context, p *Predicate, projection Projection) ([]Vehicle, error)
	FindByID(ctx context.Context, id int64) (*Vehicle, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// SearchResult 检索结果。Degraded 标记"存储故障被降级为空结果"，
// 与正常的零命中区分开，调用方/测试可以据此断言到底发生了什么。
type SearchResult struct {
	Vehicles []Vehicle
	Degraded bool
}

// Service 车辆查询服务：读路径全部降级、不向上抛存储故障。
type Service struct {
	store      Store
	projection Projection
	log        logger.Logger
}

func NewService(store Store, projection Projection, log logger.Logger) *Service {
	return &Service{store: store, projection: projection, log: log}
}

// Search 按检索词查车。空词（trim 后）短路为空结果；
// 存储故障记日志并降级为空结果（Degraded=true）。
func (s *Service) Search(ctx context.Context, term string, fields FieldSet) SearchResult {
	p := BuildPredicate(term, fields)
	if p == nil {
		return SearchResult{Vehicles: []Vehicle{}}
	}

	vehicles, err := s.store.Search(ctx, p, s.projection)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).WithField("term", term).Warn("vehicle search degraded to empty")
		}
		return SearchResult{Vehicles: []Vehicle{}, Degraded: true}
	}
	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	return SearchResult{Vehicles: vehicles}
}

// Get 单车查询；无记录与存储故障都折叠为 ErrNotFound（后者先记日志）。
func (s *Service) Get(ctx context.Context, id int64) (*Vehicle, error) {
	v, err := s.store.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) && s.log != nil {
			s.log.WithError(err).WithField("vehicle_id", id).Error("vehicle fetch failed")
		}
		return nil, ErrNotFound
	}
	return v, nil
}

// ListIDs 枚举车辆 id；错误原样返回，由视图层决定退化策略。
func (s *Service) ListIDs(ctx context.Context) ([]int64, error) {
	return s.store.ListIDs(ctx)
}
