package author

import (
	"context"
	"errors"
	"strings"

	"github.com/phoenixpulsar/auto-chain-verify/internal/common/logger"
	"gorm.io/gorm"
)

// State 作者认证解析结果状态。
type State string

const (
	StateUnauthenticated State = "unauthenticated" // 未签入，未查库
	StateUnverified      State = "unverified"      // 查库确认无此作者
	StateIndeterminate   State = "indeterminate"   // 存储故障，无法判定
	StateVerified        State = "verified"        // 命中认证作者
)

// Resolution 一次解析的完整结果；只有 Verified 才允许写台账。
type Resolution struct {
	State  State
	Author *VerifiedAuthor // 仅 StateVerified 时非 nil
}

// CanWrite 是否放行写路径。Unverified 与 Indeterminate 都不放行，
// 但二者对用户的提示不同：后者是"暂时无法确认"而非"你不是认证作者"。
func (r Resolution) CanWrite() bool {
	return r.State == StateVerified
}

// Lookup 作者查询接口，由 *Repo 实现。
type Lookup interface {
	FindByAccount(ctx context.Context, accountName string) (*VerifiedAuthor, error)
}

// Service 作者认证解析。无副作用、幂等，身份每次变更都可安全重跑。
type Service struct {
	lookup Lookup
	log    logger.Logger
}

func NewService(lookup Lookup, log logger.Logger) *Service {
	return &Service{lookup: lookup, log: log}
}

// Resolve 把签入账号解析为认证作者。
// 账号为空（匿名）直接返回 Unauthenticated，不发起任何查询。
func (s *Service) Resolve(ctx context.Context, accountID string) Resolution {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Resolution{State: StateUnauthenticated}
	}

	a, err := s.lookup.FindByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Resolution{State: StateUnverified}
		}
		if s.log != nil {
			s.log.WithError(err).WithField("account", accountID).Warn("author lookup failed, resolution indeterminate")
		}
		return Resolution{State: StateIndeterminate}
	}

	return Resolution{State: StateVerified, Author: a}
}
