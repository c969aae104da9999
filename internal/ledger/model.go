package ledger

import (
	"time"

	"github.com/phoenixpulsar/auto-chain-verify/internal/author"
)

// MaintenanceRecord 是 maintenance_records 表的 GORM 模型。
// 台账只追加：记录落库后不存在任何更新/删除路径。
type MaintenanceRecord struct {
	ID                 int64                  `gorm:"primaryKey;autoIncrement"`
	VehicleID          int64                  `gorm:"index;not null"`
	ServiceDescription string                 `gorm:"size:1024;not null"`
	AnchorHash         string                 `gorm:"size:128;not null"` // 存证 token，成功写入的记录必有
	AuthorID           *int64                 `gorm:"index"`             // 认证作者；历史无鉴权数据为 NULL
	Author             *author.VerifiedAuthor `gorm:"foreignKey:AuthorID"`
	CreatedAt          time.Time              `gorm:"autoCreateTime;index"` // 唯一排序键
}

// TableName 显式指定表名。
func (MaintenanceRecord) TableName() string {
	return "maintenance_records"
}

// AuthorAccountName 展示用：关联作者的账号名，无作者返回空串。
func (m MaintenanceRecord) AuthorAccountName() string {
	if m.Author == nil {
		return ""
	}
	return m.Author.AccountName
}
