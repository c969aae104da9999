package author

import (
	"time"
)

// VerifiedAuthor 是 verified_authors 表的 GORM 模型：
// 允许追加维保记录的白名单身份，account_name 对应外部签入账号。
type VerifiedAuthor struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	AccountName string    `gorm:"uniqueIndex;size:128;not null"`
	Email       string    `gorm:"size:128"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 显式指定表名。
func (VerifiedAuthor) TableName() string {
	return "verified_authors"
}
