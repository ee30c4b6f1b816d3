package recording

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DialectRecord 是一条方言录音及其审核、投票状态。录音从不硬删除。
type DialectRecord struct {
	ID         string  `gorm:"primarykey;type:varchar(36)" json:"id"`
	UserID     string  `gorm:"type:varchar(36);index" json:"user_id"`
	AudioURL   string  `gorm:"type:varchar(1024);not null" json:"audio_url"`
	Transcript string  `gorm:"type:text;not null" json:"transcript"`
	Dialect    string  `gorm:"type:varchar(64);not null;index" json:"dialect"`
	Duration   float64 `json:"duration"`
	PromptID   string  `gorm:"type:varchar(64)" json:"prompt_id,omitempty"`

	QualityScore *float64 `json:"quality_score"`

	// IsApproved 为 nil 表示从未审核
	IsApproved *bool      `json:"is_approved"`
	ReviewedBy string     `gorm:"type:varchar(36);index" json:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at"`

	IsFeatured  bool       `gorm:"not null;default:false" json:"is_featured"`
	SoftDeleted bool       `gorm:"not null;default:false;index" json:"soft_deleted"`
	DeletedBy   string     `gorm:"type:varchar(36)" json:"deleted_by,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	Upvotes   int `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int `gorm:"not null;default:0" json:"downvotes"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DialectRecord) TableName() string {
	return "dialect_records"
}

// Pending 报告录音是否仍在等待审核：从未审核过，也没有被删除。
func (r *DialectRecord) Pending() bool {
	approved := r.IsApproved != nil && *r.IsApproved
	return !approved && r.ReviewedBy == "" && !r.SoftDeleted
}

// ReviewState 返回录音的审核状态：pending、approved、rejected 或 deleted。
func (r *DialectRecord) ReviewState() string {
	switch {
	case r.SoftDeleted:
		return "deleted"
	case r.IsApproved != nil && *r.IsApproved:
		return "approved"
	case r.ReviewedBy != "":
		return "rejected"
	default:
		return "pending"
	}
}

// Migrate 迁移录音表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&DialectRecord{}); err != nil {
		return fmt.Errorf("无法迁移dialect_records表: %w", err)
	}
	return nil
}
