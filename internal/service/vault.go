package service

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/giga89/memento-legacy/internal/models"

	"gorm.io/gorm"
)

// VaultService 封装遗嘱消息的 CRUD，全部操作以 owner 为边界：
// 别人的消息 id 在这里等同于不存在。
type VaultService struct {
	db *gorm.DB
}

func NewVaultService(db *gorm.DB) *VaultService {
	return &VaultService{db: db}
}

// MessageDTO 对外输出的消息数据。
type MessageDTO struct {
	ID        uint   `json:"id"`
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
	Contact   string `json:"contact"`
	Text      string `json:"text"`
}

// MessageInput 创建/更新消息的入参。
type MessageInput struct {
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
	Contact   string `json:"contact"`
	Text      string `json:"text"`
}

// 大致的 E.164：可选 + 号，7~15 位数字。
var phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// validate 校验消息字段；contact 的形状按渠道检查。
// 渠道集合是可扩展的：加新渠道时在这里补一条分支，并在 dispatch 注册发送器。
func validate(in MessageInput) error {
	if strings.TrimSpace(in.Recipient) == "" {
		return &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if strings.TrimSpace(in.Text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	switch strings.ToLower(in.Channel) {
	case "email":
		if _, err := mail.ParseAddress(in.Contact); err != nil {
			return &ValidationError{Field: "contact", Reason: "must be a valid email address"}
		}
	case "sms":
		if !phoneRe.MatchString(in.Contact) {
			return &ValidationError{Field: "contact", Reason: "must be a valid phone number"}
		}
	default:
		return &ValidationError{Field: "channel", Reason: "unsupported channel"}
	}
	return nil
}

func toDTO(m models.Message) MessageDTO {
	return MessageDTO{ID: m.ID, Recipient: m.Recipient, Channel: m.Channel, Contact: m.Contact, Text: m.Text}
}

// List 返回该用户的全部消息，按 id 升序。
func (s *VaultService) List(userID uint) ([]MessageDTO, error) {
	var msgs []models.Message
	if err := s.db.Where("user_id = ?", userID).Order("id asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toDTO(m))
	}
	return out, nil
}

// Create 校验并保存一条新消息。允许重复内容。
func (s *VaultService) Create(userID uint, in MessageInput) (*MessageDTO, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	msg := models.Message{
		UserID:    userID,
		Recipient: in.Recipient,
		Channel:   in.Channel,
		Contact:   in.Contact,
		Text:      in.Text,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	dto := toDTO(msg)
	return &dto, nil
}

// Update 整体覆盖一条消息。id 不存在或属于别的用户时返回 ErrMessageNotFound。
func (s *VaultService) Update(userID, id uint, in MessageInput) (*MessageDTO, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	var msg models.Message
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	msg.Recipient = in.Recipient
	msg.Channel = in.Channel
	msg.Contact = in.Contact
	msg.Text = in.Text
	if err := s.db.Save(&msg).Error; err != nil {
		return nil, err
	}
	dto := toDTO(msg)
	return &dto, nil
}

// Delete 删除一条消息，所有权约束同 Update。
func (s *VaultService) Delete(userID, id uint) error {
	res := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
