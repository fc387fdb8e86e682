// internal/service/loyalty/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// StampCardModel 对应数据库中的 stamp_card 表
type StampCardModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	StoreID         string `gorm:"size:64;index"`
	GoalStampCount  int
	RewardName      string `gorm:"size:128"`
	RewardQuantity  int
	ExpireDays      int
	Status          string `gorm:"size:16"`
	EligibilityRule string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StampCardModel) TableName() string {
	return "stamp_card"
}

// IssuanceRequestModel 对应数据库中的 issuance_request 表
type IssuanceRequestModel struct {
	ID                  string `gorm:"primaryKey;size:36"`
	StoreID             string `gorm:"size:64;index:idx_issuance_store_status"`
	CustomerID          string `gorm:"size:64;index:idx_issuance_customer_card"`
	StampCardID         string `gorm:"size:36;index:idx_issuance_customer_card"`
	RequestedStampCount int
	Status              string `gorm:"size:16;index:idx_issuance_store_status"`
	DecidedBy           string `gorm:"size:64"`
	DecidedAt           sql.NullTime
	CreatedAt           time.Time `gorm:"index"`
	ExpiresAt           time.Time
	UpdatedAt           time.Time
}

// TableName 指定 GORM 应该使用的表名
func (IssuanceRequestModel) TableName() string {
	return "issuance_request"
}

// RedemptionRequestModel 对应数据库中的 redemption_request 表
type RedemptionRequestModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	CustomerID     string `gorm:"size:64;index"`
	RewardCouponID string `gorm:"size:36;index"`
	Status         string `gorm:"size:16"`
	FailReason     string `gorm:"size:255"`
	ConfirmedAt    sql.NullTime
	CompletedAt    sql.NullTime
	FailedAt       sql.NullTime
	CreatedAt      time.Time
	ExpiresAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定 GORM 应该使用的表名
func (RedemptionRequestModel) TableName() string {
	return "redemption_request"
}

// StampBalanceModel 对应数据库中的 stamp_balance 表。
// (customer_id, stamp_card_id) 唯一：一个顾客在一张卡上只有一条台账。
type StampBalanceModel struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	CustomerID    string `gorm:"size:64;uniqueIndex:uk_balance_customer_card"`
	StampCardID   string `gorm:"size:36;uniqueIndex:uk_balance_customer_card"`
	CurrentCount  int
	LastUpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StampBalanceModel) TableName() string {
	return "stamp_balance"
}

// RewardCouponModel 对应数据库中的 reward_coupon 表
type RewardCouponModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	CustomerID  string `gorm:"size:64;index"`
	StampCardID string `gorm:"size:36"`
	RewardName  string `gorm:"size:128"`
	IssuedAt    time.Time
	ExpiresAt   time.Time
	UsedAt      sql.NullTime
}

// TableName 指定 GORM 应该使用的表名
func (RewardCouponModel) TableName() string {
	return "reward_coupon"
}

// AutoMigrate 建表，仅供本地开发和测试环境使用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&StampCardModel{},
		&IssuanceRequestModel{},
		&RedemptionRequestModel{},
		&StampBalanceModel{},
		&RewardCouponModel{},
	)
}
