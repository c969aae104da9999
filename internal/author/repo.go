package author

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FindByAccount 按外部账号名做等值单行查询。
// 未命中返回 gorm.ErrRecordNotFound，由上层区分"未认证"与其他故障。
func (r *Repo) FindByAccount(ctx context.Context, accountName string) (*VerifiedAuthor, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var a VerifiedAuthor
	if err := r.db.WithContext(ctx).Where("account_name = ?", accountName).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// Create 登记认证作者（后台管理路径）。
func (r *Repo) Create(ctx context.Context, a *VerifiedAuthor) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(a).Error
}
