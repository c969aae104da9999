package vehicle

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Projection 查询投影：列表页只取摘要列，详情页取整行。
type Projection int

const (
	ProjectionFull    Projection = iota // 整行
	ProjectionSummary                   // id, vin, model, make, year, plates
)

var summaryColumns = []string{"id", "vin", "model", "make", "year", "plates"}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// Search 按谓词检索；p 为 nil 时直接返回空集（不发起无条件查询）。
func (r *Repo) Search(ctx context.Context, p *Predicate, projection Projection) ([]Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if p == nil || len(p.Conditions) == 0 {
		return []Vehicle{}, nil
	}

	q := db.Model(&Vehicle{})
	if projection == ProjectionSummary {
		q = q.Select(summaryColumns)
	}
	q = p.Apply(q)

	var vehicles []Vehicle
	if err := q.Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (r *Repo) FindByID(ctx context.Context, id int64) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListIDs 枚举全部车辆 id（详情页预渲染路径用）。
func (r *Repo) ListIDs(ctx context.Context) ([]int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var ids []int64
	if err := db.Model(&Vehicle{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Save 登记/更新车辆。属于后台管理路径，不经过对外 API。
func (r *Repo) Save(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(v).Error
}
