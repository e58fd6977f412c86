package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SwitchState 每个用户一条，保存死人开关的全部权威状态。
// 倒计时不在内存里维护，而是每次按 LastHeartbeatAt + PeriodSeconds 现场计算。
type SwitchState struct {
	ID              uint      `gorm:"primaryKey"`
	UserID          uint      `gorm:"uniqueIndex;not null"`
	PeriodSeconds   int64     `gorm:"not null;default:172800"`
	LastHeartbeatAt time.Time `gorm:"not null"`
	IsSimulation    bool      `gorm:"not null;default:false"`
	Triggered       bool      `gorm:"not null;default:false"`
	TriggeredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TimeLeft 按当前时刻计算剩余秒数。触发后恒为 0，直到主人显式 reset。
func (s *SwitchState) TimeLeft(now time.Time) int64 {
	if s.Triggered {
		return 0
	}
	elapsed := int64(now.Sub(s.LastHeartbeatAt) / time.Second)
	left := s.PeriodSeconds - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// Due 判断静默期是否已经耗尽。
func (s *SwitchState) Due(now time.Time) bool {
	return !s.Triggered && s.TimeLeft(now) == 0
}

type Message struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	Recipient string `gorm:"size:100;not null"`
	Channel   string `gorm:"size:50;not null"`
	Contact   string `gorm:"size:200;not null"`
	Text      string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// DeliveryRecord 派发审计日志：每条遗嘱消息的最终投递结果（成功/模拟/失败）。
type DeliveryRecord struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	MessageID uint   `gorm:"index;not null"`
	Recipient string `gorm:"size:100;not null"`
	Channel   string `gorm:"size:50;not null"`
	Contact   string `gorm:"size:200;not null"`
	Status    string `gorm:"size:20;not null"`
	Attempts  int    `gorm:"not null"`
	Error     string `gorm:"size:500"`
	CreatedAt time.Time
}

// DeliveryRecord.Status 的取值。
const (
	DeliverySent      = "sent"
	DeliverySimulated = "simulated"
	DeliveryFailed    = "failed"
)
