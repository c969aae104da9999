package vehicle

import (
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型。
// 登记信息由后台管理路径维护，本服务只读。
type Vehicle struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	VIN       string    `gorm:"size:64;index"`
	Plates    string    `gorm:"size:32;index"`
	Make      string    `gorm:"size:64"`
	Model     string    `gorm:"size:64"`
	Year      int       `gorm:"index"`
	Color     string    `gorm:"size:32"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
