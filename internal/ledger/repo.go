package ledger

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

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// Create 追加一条维保记录。台账只追加，没有对应的更新/删除。
func (r *Repo) Create(ctx context.Context, rec *MaintenanceRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(rec).Error
}

// ListByVehicle 按车辆读取全量维保历史，created_at 倒序（最新在前），
// 同时带出作者投影（maintenance_records.author_id -> verified_authors）。
func (r *Repo) ListByVehicle(ctx context.Context, vehicleID int64) ([]MaintenanceRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var records []MaintenanceRecord
	err := db.
		Where("vehicle_id = ?", vehicleID).
		Preload("Author").
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
