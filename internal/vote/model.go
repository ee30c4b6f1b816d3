package vote

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Type 定义了投票类型的枚举
type Type string

const (
	TypeUpvote   Type = "upvote"
	TypeDownvote Type = "downvote"
)

func (t Type) Valid() bool {
	return t == TypeUpvote || t == TypeDownvote
}

// VoiceVote 记录一个用户对一条录音的投票。(UserID, RecordingID) 唯一。
type VoiceVote struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_recording" json:"user_id"`
	RecordingID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_recording;index" json:"recording_id"`
	VoteType    Type      `gorm:"type:varchar(16);not null" json:"vote_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (VoiceVote) TableName() string {
	return "voice_votes"
}

// Migrate 迁移投票表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&VoiceVote{}); err != nil {
		return fmt.Errorf("无法迁移voice_votes表: %w", err)
	}
	return nil
}
