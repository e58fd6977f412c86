// Package dispatch 定义各投递渠道的发送器。真正的外发只有 Email（SMTP），
// 其余渠道先以日志形式落地，接入真实网关后替换即可。
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// Delivery 一次投递需要的全部内容。
type Delivery struct {
	Owner     string // 开关主人的用户名，用于署名
	Recipient string // 收件人显示名
	Contact   string // 渠道地址（邮箱/手机号）
	Text      string // 遗嘱正文
}

type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// EmailSender 通过 SMTP 外发遗嘱邮件。
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{dialer: gomail.NewDialer(host, port, user, password), from: from}
}

// Send 组装并发送邮件。超时控制在调用方（按单次尝试计时），
// 这里只管一次完整的 SMTP 会话。
func (s *EmailSender) Send(ctx context.Context, d Delivery) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", d.Contact)
	m.SetHeader("Subject", fmt.Sprintf("A Legacy Message from %s via Memento", d.Owner))
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\n%s has left this legacy message for you:\n\n---\n%s\n---\n\nSent via Memento Digital Legacy.",
		d.Recipient, d.Owner, d.Text))
	return s.dialer.DialAndSend(m)
}

// LogSender 把投递动作写进日志，作为未接入真实网关渠道的兜底。
type LogSender struct {
	Channel string
}

func (s *LogSender) Send(ctx context.Context, d Delivery) error {
	log.Info().
		Str("channel", s.Channel).
		Str("recipient", d.Recipient).
		Str("contact", d.Contact).
		Msg("delivery logged (no real gateway for this channel)")
	return nil
}
