package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/giga89/memento-legacy/internal/config"
	"github.com/giga89/memento-legacy/internal/dispatch"
	"github.com/giga89/memento-legacy/internal/metrics"
	"github.com/giga89/memento-legacy/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DispatchService 在开关触发后把用户的全部遗嘱消息投递到各自渠道。
// 每条消息独立尝试：一条失败不影响其余；失败在有限次退避重试后
// 落为 failed 审计记录，绝不把错误同步抛回给任何请求。
type DispatchService struct {
	db             *gorm.DB
	senders        map[string]dispatch.Sender
	maxAttempts    int
	attemptTimeout time.Duration
	retryBaseDelay time.Duration
}

func NewDispatchService(db *gorm.DB, cfg config.Config) *DispatchService {
	senders := map[string]dispatch.Sender{
		"sms": &dispatch.LogSender{Channel: "sms"},
	}
	if cfg.SMTPHost != "" {
		senders["email"] = dispatch.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		senders["email"] = &dispatch.LogSender{Channel: "email"}
	}
	return &DispatchService{
		db:             db,
		senders:        senders,
		maxAttempts:    cfg.DispatchMaxAttempts,
		attemptTimeout: time.Duration(cfg.DispatchTimeoutSeconds) * time.Second,
		retryBaseDelay: 2 * time.Second,
	}
}

func (s *DispatchService) senderFor(channel string) dispatch.Sender {
	if snd, ok := s.senders[strings.ToLower(channel)]; ok {
		return snd
	}
	return &dispatch.LogSender{Channel: strings.ToLower(channel)}
}

// Dispatch 派发一个用户的全部消息。由 sweep 或 panic 在触发时刻异步调用，
// 可以安全重入（审计记录只会多不会错），但触发方的 CAS 保证正常只进一次。
func (s *DispatchService) Dispatch(ctx context.Context, userID uint) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("dispatch load user")
		return
	}
	var st models.SwitchState
	if err := s.db.Where("user_id = ?", userID).First(&st).Error; err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("dispatch load switch state")
		return
	}
	var msgs []models.Message
	if err := s.db.Where("user_id = ?", userID).Order("id asc").Find(&msgs).Error; err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("dispatch load messages")
		return
	}

	log.Info().Uint("user_id", userID).Int("messages", len(msgs)).Bool("simulation", st.IsSimulation).
		Msg("dispatching legacy messages")

	var wg sync.WaitGroup
	for _, m := range msgs {
		wg.Add(1)
		go func(m models.Message) {
			defer wg.Done()
			s.deliver(ctx, user.Username, st.IsSimulation, m)
		}(m)
	}
	wg.Wait()
}

// deliver 投递单条消息并落一条审计记录。
func (s *DispatchService) deliver(ctx context.Context, owner string, simulation bool, m models.Message) {
	rec := models.DeliveryRecord{
		UserID:    m.UserID,
		MessageID: m.ID,
		Recipient: m.Recipient,
		Channel:   m.Channel,
		Contact:   m.Contact,
	}

	if simulation {
		// 模拟模式走完整流程但跳过真实外发。
		rec.Status = models.DeliverySimulated
		log.Info().Uint("message_id", m.ID).Str("channel", m.Channel).Str("recipient", m.Recipient).
			Msg("simulation: delivery suppressed")
		s.record(rec)
		return
	}

	d := dispatch.Delivery{Owner: owner, Recipient: m.Recipient, Contact: m.Contact, Text: m.Text}
	snd := s.senderFor(m.Channel)

	var lastErr error
	for i := 1; i <= s.maxAttempts; i++ {
		rec.Attempts = i
		lastErr = s.attempt(ctx, snd, d)
		if lastErr == nil {
			break
		}
		log.Warn().Err(lastErr).Uint("message_id", m.ID).Int("attempt", i).Msg("delivery attempt failed")
		if i < s.maxAttempts {
			select {
			case <-time.After(time.Duration(i) * s.retryBaseDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				i = s.maxAttempts
			}
		}
	}
	if lastErr == nil {
		rec.Status = models.DeliverySent
	} else {
		rec.Status = models.DeliveryFailed
		rec.Error = truncate(lastErr.Error(), 500)
		log.Error().Err(lastErr).Uint("message_id", m.ID).Str("channel", m.Channel).
			Msg("delivery permanently failed")
	}
	s.record(rec)
}

// attempt 单次投递尝试，超时算一次失败，交给重试策略处理。
func (s *DispatchService) attempt(ctx context.Context, snd dispatch.Sender, d dispatch.Delivery) error {
	actx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- snd.Send(actx, d) }()
	select {
	case err := <-done:
		return err
	case <-actx.Done():
		return actx.Err()
	}
}

func (s *DispatchService) record(rec models.DeliveryRecord) {
	metrics.DispatchDeliveriesTotal.WithLabelValues(strings.ToLower(rec.Channel), rec.Status).Inc()
	if err := s.db.Create(&rec).Error; err != nil {
		log.Error().Err(err).Uint("message_id", rec.MessageID).Msg("write delivery record")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DeliveryDTO 对外输出的审计记录。
type DeliveryDTO struct {
	ID        uint      `json:"id"`
	MessageID uint      `json:"message_id"`
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Contact   string    `json:"contact"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListDeliveries 按时间倒序返回该用户的派发审计日志。
func (s *DispatchService) ListDeliveries(userID uint) ([]DeliveryDTO, error) {
	var recs []models.DeliveryRecord
	if err := s.db.Where("user_id = ?", userID).Order("id desc").Limit(200).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]DeliveryDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, DeliveryDTO{
			ID: r.ID, MessageID: r.MessageID, Recipient: r.Recipient, Channel: r.Channel,
			Contact: r.Contact, Status: r.Status, Attempts: r.Attempts, Error: r.Error, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
