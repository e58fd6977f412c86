package service

import (
	"context"
	"errors"
	"time"

	"github.com/giga89/memento-legacy/internal/metrics"
	"github.com/giga89/memento-legacy/internal/models"
	"github.com/giga89/memento-legacy/internal/ws"

	"gorm.io/gorm"
)

// SwitchService 封装死人开关的业务逻辑：心跳、状态读取、模拟开关、
// panic 立即触发与触发后的显式复位。
//
// 状态机：ARMED --(deadline/panic)--> TRIGGERED --(reset)--> ARMED。
// 心跳只在 ARMED 下推迟 deadline，触发后的心跳不会自动复位。
type SwitchService struct {
	db         *gorm.DB
	hub        *ws.Hub
	dispatcher *DispatchService
}

func NewSwitchService(db *gorm.DB, dispatcher *DispatchService, hub *ws.Hub) *SwitchService {
	return &SwitchService{db: db, dispatcher: dispatcher, hub: hub}
}

// StatusDTO /api/status 的响应体，字段与原有客户端约定保持一致。
type StatusDTO struct {
	Username     string `json:"username"`
	TimeLeft     int64  `json:"time_left"`
	IsSimulation bool   `json:"is_simulation"`
	IsTriggered  bool   `json:"is_triggered"`
	BaseTime     int64  `json:"base_time"`
}

func (s *SwitchService) state(userID uint) (*models.SwitchState, error) {
	var st models.SwitchState
	if err := s.db.Where("user_id = ?", userID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSwitchNotFound
		}
		return nil, err
	}
	return &st, nil
}

// Status 纯读操作：剩余时间按存储的时间戳现场计算，调用任意多次不改变状态。
func (s *SwitchService) Status(userID uint, username string) (*StatusDTO, error) {
	st, err := s.state(userID)
	if err != nil {
		return nil, err
	}
	return &StatusDTO{
		Username:     username,
		TimeLeft:     st.TimeLeft(time.Now()),
		IsSimulation: st.IsSimulation,
		IsTriggered:  st.Triggered,
		BaseTime:     st.PeriodSeconds,
	}, nil
}

// Heartbeat 把 last_heartbeat_at 推到当前时刻。
// 已触发的开关不会因心跳自动复位，必须走 Reset。
func (s *SwitchService) Heartbeat(userID uint) error {
	st, err := s.state(userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := s.db.Model(st).Update("last_heartbeat_at", now).Error; err != nil {
		return err
	}
	metrics.HeartbeatsTotal.Inc()
	s.hub.Publish(userID, ws.Event{
		Type:         ws.EventHeartbeat,
		TimeLeft:     st.PeriodSeconds,
		IsSimulation: st.IsSimulation,
		Triggered:    st.Triggered,
	})
	return nil
}

// ToggleSimulation 翻转模拟标志，不动倒计时也不动触发标志。
func (s *SwitchService) ToggleSimulation(userID uint) (bool, error) {
	st, err := s.state(userID)
	if err != nil {
		return false, err
	}
	next := !st.IsSimulation
	if err := s.db.Model(st).Update("is_simulation", next).Error; err != nil {
		return false, err
	}
	s.hub.Publish(userID, ws.Event{
		Type:         ws.EventSimulation,
		TimeLeft:     st.TimeLeft(time.Now()),
		IsSimulation: next,
		Triggered:    st.Triggered,
	})
	return next, nil
}

// Panic 跳过倒计时立即触发。条件更新保证幂等：已触发的开关上重复 panic
// 不会二次派发。返回值表示这次调用是否真的把开关打了出去。
func (s *SwitchService) Panic(userID uint) (bool, error) {
	now := time.Now()
	res := s.db.Model(&models.SwitchState{}).
		Where("user_id = ? AND triggered = ?", userID, false).
		Updates(map[string]interface{}{"triggered": true, "triggered_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	metrics.SwitchTriggersTotal.WithLabelValues("panic").Inc()
	s.hub.Publish(userID, ws.Event{Type: ws.EventTriggered, Triggered: true})
	go s.dispatcher.Dispatch(context.Background(), userID)
	return true, nil
}

// Reset 触发后的显式复位：清掉触发标志并重新开始计时。
// 这是 TRIGGERED 回到 ARMED 的唯一路径。
func (s *SwitchService) Reset(userID uint) error {
	st, err := s.state(userID)
	if err != nil {
		return err
	}
	now := time.Now()
	err = s.db.Model(st).Updates(map[string]interface{}{
		"triggered":         false,
		"triggered_at":      nil,
		"last_heartbeat_at": now,
	}).Error
	if err != nil {
		return err
	}
	s.hub.Publish(userID, ws.Event{
		Type:         ws.EventReset,
		TimeLeft:     st.PeriodSeconds,
		IsSimulation: st.IsSimulation,
	})
	return nil
}
