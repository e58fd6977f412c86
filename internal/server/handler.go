package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/giga89/memento-legacy/internal/auth"
	"github.com/giga89/memento-legacy/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
// 错误体统一为 {"msg": ...}，这是既有客户端解析的格式。
type Handler struct {
	userSvc     *service.UserService
	switchSvc   *service.SwitchService
	vaultSvc    *service.VaultService
	dispatchSvc *service.DispatchService
}

func NewHandler(userSvc *service.UserService, switchSvc *service.SwitchService, vaultSvc *service.VaultService, dispatchSvc *service.DispatchService) *Handler {
	return &Handler{userSvc: userSvc, switchSvc: switchSvc, vaultSvc: vaultSvc, dispatchSvc: dispatchSvc}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func bindCredentials(c *gin.Context) (credentials, bool) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid payload"})
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid payload"})
		return req, false
	}
	return req, true
}

// Register 处理注册请求。
func (h *Handler) Register(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid password"})
		return
	}
	if _, err := h.userSvc.Register(req.Username, req.Password); err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Username already exists"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "User created successfully"})
}

// Login 处理登录请求，签发 token 对。
func (h *Handler) Login(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Bad username or password"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"username":      result.User.Username,
	})
}

// RefreshToken 处理 token 刷新请求（旋转刷新）。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// Status 返回开关状态，纯读不落库。
func (h *Handler) Status(c *gin.Context) {
	dto, err := h.switchSvc.Status(auth.GetUserID(c), auth.GetUsername(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("status")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Failed to read status"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// Heartbeat 处理 "I AM ALIVE"：重置倒计时。
func (h *Handler) Heartbeat(c *gin.Context) {
	if err := h.switchSvc.Heartbeat(auth.GetUserID(c)); err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("heartbeat")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Heartbeat received"})
}

// ToggleSimulation 翻转模拟模式。
func (h *Handler) ToggleSimulation(c *gin.Context) {
	v, err := h.switchSvc.ToggleSimulation(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("toggle simulation")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Toggle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_simulation": v})
}

// Panic 立即触发开关。幂等：重复调用不会二次派发。
func (h *Handler) Panic(c *gin.Context) {
	fired, err := h.switchSvc.Panic(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("panic")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Panic failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Switch triggered", "fired": fired})
}

// Reset 触发后的显式复位。
func (h *Handler) Reset(c *gin.Context) {
	if err := h.switchSvc.Reset(auth.GetUserID(c)); err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("reset")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Switch reset"})
}

// ListMessages 返回当前用户的全部遗嘱消息。
func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.vaultSvc.List(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func bindMessageInput(c *gin.Context) (service.MessageInput, bool) {
	var in service.MessageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid payload"})
		return in, false
	}
	return in, true
}

// mapVaultError 把 vault 层错误翻译成 HTTP 响应。
func mapVaultError(c *gin.Context, err error, op string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid " + ve.Field + ": " + ve.Reason})
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "Message not found"})
	default:
		log.Error().Err(err).Msg(op)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Operation failed"})
	}
}

// CreateMessage 新建遗嘱消息。
func (h *Handler) CreateMessage(c *gin.Context) {
	in, ok := bindMessageInput(c)
	if !ok {
		return
	}
	dto, err := h.vaultSvc.Create(auth.GetUserID(c), in)
	if err != nil {
		mapVaultError(c, err, "create message")
		return
	}
	c.JSON(http.StatusCreated, dto)
}

// UpdateMessage 整体覆盖一条遗嘱消息。
func (h *Handler) UpdateMessage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid message id"})
		return
	}
	in, ok := bindMessageInput(c)
	if !ok {
		return
	}
	dto, err := h.vaultSvc.Update(auth.GetUserID(c), uint(id), in)
	if err != nil {
		mapVaultError(c, err, "update message")
		return
	}
	c.JSON(http.StatusOK, dto)
}

// DeleteMessage 删除一条遗嘱消息。
func (h *Handler) DeleteMessage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid message id"})
		return
	}
	if err := h.vaultSvc.Delete(auth.GetUserID(c), uint(id)); err != nil {
		mapVaultError(c, err, "delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Message deleted"})
}

// ListDeliveries 返回派发审计日志。
func (h *Handler) ListDeliveries(c *gin.Context) {
	recs, err := h.dispatchSvc.ListDeliveries(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("list deliveries")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Failed to list deliveries"})
		return
	}
	c.JSON(http.StatusOK, recs)
}
