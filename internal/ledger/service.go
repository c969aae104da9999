package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phoenixpulsar/auto-chain-verify/internal/anchor"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/logger"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/middleware"
)

// 入参校验错误（信任边界上的显式检查，不依赖前端的 required 约束）。
var (
	ErrEmptyDescription   = errors.New("service description is empty")
	ErrDescriptionTooLong = errors.New("service description too long")
	ErrAuthorRequired     = errors.New("verified author required")
	ErrInvalidVehicle     = errors.New("vehicle id required")
)

// Outcome 一次写入的最终结果标签。
type Outcome string

const (
	OutcomeCommitted    Outcome = "committed"
	OutcomeAnchorFailed Outcome = "anchor_failed"
	OutcomeInsertFailed Outcome = "insert_failed"
)

// RecordStore 台账存储接口，由 *Repo 实现。
type RecordStore interface {
	Create(ctx context.Context, rec *MaintenanceRecord) error
	ListByVehicle(ctx context.Context, vehicleID int64) ([]MaintenanceRecord, error)
}

// Options 写入策略。
type Options struct {
	RequireVerifiedAuthor bool          // 写入是否必须携带认证作者
	MaxDescriptionLen     int           // 描述最大长度（0 取默认 1024）
	AnchorTimeout         time.Duration // 存证调用超时（0 不限制）
	Breaker               *middleware.CircuitBreaker
}

// Service 维保台账服务：校验 -> 存证 -> 落库 -> 回读 的写入流水线。
// 作者认证由调用方先行解析；本服务只执行 RequireVerifiedAuthor 策略检查，
// 不重新查认证表。
type Service struct {
	store  RecordStore
	anchor anchor.Provider
	opts   Options
	log    logger.Logger
	now    func() time.Time
}

func NewService(store RecordStore, provider anchor.Provider, opts Options, log logger.Logger) *Service {
	if opts.MaxDescriptionLen <= 0 {
		opts.MaxDescriptionLen = 1024
	}
	return &Service{
		store:  store,
		anchor: provider,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// AddInput 写入入参。AuthorID 为 nil 表示无作者（仅在策略关闭时允许）。
type AddInput struct {
	VehicleID   int64
	Description string
	AuthorID    *int64
}

// AddResult 写入结果。Outcome 非 committed 时 Records 为 nil，
// 调用方应保留用户输入以便重试。
type AddResult struct {
	Outcome    Outcome
	Attempt    Attempt
	AnchorHash string
	Records    []MaintenanceRecord
}

// Add 追加一条维保记录。
//
// 校验失败返回 error；流水线失败（存证/落库）不算 error，
// 通过 Outcome 标签表达，保证每个分支都被调用方显式处理。
// 存证失败时绝不落库；落库失败时不回收 token（孤儿 token 是可接受副作用）。
func (s *Service) Add(ctx context.Context, in AddInput) (*AddResult, error) {
	if in.VehicleID <= 0 {
		return nil, ErrInvalidVehicle
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	if len(desc) > s.opts.MaxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	if s.opts.RequireVerifiedAuthor && in.AuthorID == nil {
		return nil, ErrAuthorRequired
	}

	attempt := NewAttempt(s.now())
	result := &AddResult{}

	if err := attempt.Transition(StatusAnchoring, s.now()); err != nil {
		return nil, err
	}
	hash, err := s.submitAnchor(ctx)
	if err != nil {
		_ = attempt.Transition(StatusAnchorFailed, s.now())
		if s.log != nil {
			s.log.WithError(err).WithField("vehicle_id", in.VehicleID).Warn("anchor submit failed, record not inserted")
		}
		result.Outcome = OutcomeAnchorFailed
		result.Attempt = *attempt
		return result, nil
	}
	result.AnchorHash = hash

	if err := attempt.Transition(StatusInserting, s.now()); err != nil {
		return nil, err
	}
	rec := &MaintenanceRecord{
		VehicleID:          in.VehicleID,
		ServiceDescription: desc,
		AnchorHash:         hash,
		AuthorID:           in.AuthorID,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		_ = attempt.Transition(StatusInsertFailed, s.now())
		if s.log != nil {
			// token 不可撤销，孤儿 token 只记录不补偿
			s.log.WithError(err).WithFields(map[string]interface{}{
				"vehicle_id":  in.VehicleID,
				"anchor_hash": hash,
			}).Error("record insert failed after anchor")
		}
		result.Outcome = OutcomeInsertFailed
		result.Attempt = *attempt
		return result, nil
	}

	if err := attempt.Transition(StatusCommitted, s.now()); err != nil {
		return nil, err
	}
	result.Outcome = OutcomeCommitted
	result.Attempt = *attempt

	// 提交后全量回读，让调用方立刻看到新记录
	records, err := s.store.ListByVehicle(ctx, in.VehicleID)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).WithField("vehicle_id", in.VehicleID).Warn("post-commit reload failed")
		}
		records = []MaintenanceRecord{*rec}
	}
	result.Records = records
	return result, nil
}

// submitAnchor 单次存证提交：可选超时 + 熔断包裹，不做内部重试。
func (s *Service) submitAnchor(ctx context.Context) (string, error) {
	if s.anchor == nil {
		return "", fmt.Errorf("anchor provider not configured")
	}

	if s.opts.AnchorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AnchorTimeout)
		defer cancel()
	}

	if s.opts.Breaker == nil {
		return s.anchor.Submit(ctx)
	}

	var token string
	err := s.opts.Breaker.Call(ctx, func() error {
		t, submitErr := s.anchor.Submit(ctx)
		if submitErr != nil {
			return submitErr
		}
		token = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// HistoryResult 读路径结果；Degraded 含义同车辆检索。
type HistoryResult struct {
	Records  []MaintenanceRecord
	Degraded bool
}

// ListForVehicle 车辆维保历史（最新在前，带作者账号投影）。
// 存储故障记日志并降级为空集。
func (s *Service) ListForVehicle(ctx context.Context, vehicleID int64) HistoryResult {
	records, err := s.store.ListByVehicle(ctx, vehicleID)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).WithField("vehicle_id", vehicleID).Warn("maintenance history degraded to empty")
		}
		return HistoryResult{Records: []MaintenanceRecord{}, Degraded: true}
	}
	if records == nil {
		records = []MaintenanceRecord{}
	}
	return HistoryResult{Records: records}
}
