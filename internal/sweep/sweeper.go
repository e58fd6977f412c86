// Package sweep 周期性扫描所有未触发的开关，把静默期耗尽的开关打出去。
package sweep

import (
	"context"
	"time"

	"github.com/giga89/memento-legacy/internal/metrics"
	"github.com/giga89/memento-legacy/internal/models"
	"github.com/giga89/memento-legacy/internal/ws"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Dispatcher 触发后的派发入口，由 service.DispatchService 实现。
type Dispatcher interface {
	Dispatch(ctx context.Context, userID uint)
}

type Sweeper struct {
	db         *gorm.DB
	dispatcher Dispatcher
	hub        *ws.Hub
	interval   time.Duration
}

func New(db *gorm.DB, dispatcher Dispatcher, hub *ws.Hub, interval time.Duration) *Sweeper {
	return &Sweeper{db: db, dispatcher: dispatcher, hub: hub, interval: interval}
}

// Run 固定间隔执行扫描，直到 ctx 取消。作为独立后台任务启动。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", s.interval).Msg("deadline sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("deadline sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce 扫描一轮并返回本轮触发的开关数。
//
// 触发转换必须恰好一次：条件 UPDATE 同时钉住 triggered = false 和
// 扫描时读到的 last_heartbeat_at。心跳先落库则时间戳不再匹配、UPDATE
// 落空；UPDATE 先落库则触发成立，随后的心跳不会翻转它。多实例并发
// 扫描同理，只有一个实例的 UPDATE 能命中。
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	var states []models.SwitchState
	if err := s.db.Where("triggered = ?", false).Find(&states).Error; err != nil {
		log.Error().Err(err).Msg("sweep query")
		return 0
	}

	now := time.Now()
	fired := 0
	for _, st := range states {
		if !st.Due(now) {
			continue
		}
		res := s.db.Model(&models.SwitchState{}).
			Where("id = ? AND triggered = ? AND last_heartbeat_at = ?", st.ID, false, st.LastHeartbeatAt).
			Updates(map[string]interface{}{"triggered": true, "triggered_at": now})
		if res.Error != nil {
			log.Error().Err(res.Error).Uint("user_id", st.UserID).Msg("sweep trigger update")
			continue
		}
		if res.RowsAffected == 0 {
			// 另一个实例抢先触发，或者用户刚刚心跳续命。
			continue
		}
		fired++
		metrics.SwitchTriggersTotal.WithLabelValues("deadline").Inc()
		log.Info().Uint("user_id", st.UserID).Time("last_heartbeat", st.LastHeartbeatAt).
			Msg("switch deadline reached, triggering")
		s.hub.Publish(st.UserID, ws.Event{Type: ws.EventTriggered, Triggered: true})
		go s.dispatcher.Dispatch(ctx, st.UserID)
	}
	return fired
}
