package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/qrlink/relay/internal/health"
	"github.com/qrlink/relay/internal/presence"
	"github.com/qrlink/relay/internal/relay"
)

// RuntimeConfig holds the effective configuration exposed on /config.
type RuntimeConfig struct {
	Environment     string
	LogLevel        string
	ListenAddr      string
	SendTTLDefault  time.Duration
	SendTTLMin      time.Duration
	SendTTLMax      time.Duration
	ViewerHeartbeat time.Duration
	SessionMaxAge   time.Duration
	SweepInterval   time.Duration
	AuthMode        string
}

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	relay   *relay.Service
	viewers *presence.Registry
	checker *health.Checker
	auth    AuthConfig
	runtime *RuntimeConfig
	logger  zerolog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(rs *relay.Service, vr *presence.Registry, checker *health.Checker, auth AuthConfig, rtCfg *RuntimeConfig, logger zerolog.Logger) *Handlers {
	return &Handlers{
		relay:   rs,
		viewers: vr,
		checker: checker,
		auth:    auth,
		runtime: rtCfg,
		logger:  logger.With().Str("component", "handlers").Logger(),
	}
}

// Send handles POST /api/v1/send: the producer side of the mailbox.
func (h *Handlers) Send(c *fiber.Ctx) error {
	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Session == "" {
		return badRequest(c, "session is required")
	}
	if req.ID == "" {
		return badRequest(c, "id is required")
	}
	if req.TTL < 0 {
		return badRequest(c, "ttl must not be negative")
	}

	res, err := h.relay.Send(req.Session, req.ID, time.Duration(req.TTL)*time.Millisecond)
	if err != nil {
		if errors.Is(err, relay.ErrSessionInactive) {
			return gateClosed(c)
		}
		h.logger.Error().Err(err).Str("session", req.Session).Msg("send failed")
		return serverError(c)
	}

	return c.JSON(SendResponse{
		OK:        true,
		Version:   res.Version,
		Time:      res.Time.UnixMilli(),
		Duplicate: res.Duplicate,
	})
}

// Next handles GET /api/v1/next: the consume-once poll.
func (h *Handlers) Next(c *fiber.Ctx) error {
	session := c.Query("session")
	if session == "" {
		return badRequest(c, "session is required")
	}

	res, err := h.relay.Next(session)
	if err != nil {
		h.logger.Error().Err(err).Str("session", session).Msg("next failed")
		return serverError(c)
	}

	resp := NextResponse{OK: true, Time: res.Time.UnixMilli()}
	if res.Delivered {
		resp.ID = res.ID
	}
	return c.JSON(resp)
}

// GetStatus handles GET /api/v1/status.
func (h *Handlers) GetStatus(c *fiber.Ctx) error {
	session := c.Query("session")
	if session == "" {
		return badRequest(c, "session is required")
	}

	state, err := h.relay.Status(session)
	if err != nil {
		h.logger.Error().Err(err).Str("session", session).Msg("status read failed")
		return serverError(c)
	}

	return c.JSON(StatusResponse{
		OK:         true,
		Active:     state.Active,
		LastUpdate: state.LastUpdate.UnixMilli(),
	})
}

// SetStatus handles POST /api/v1/status: the activity gate toggle.
func (h *Handlers) SetStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Session == "" {
		return badRequest(c, "session is required")
	}
	if req.Active == nil {
		return badRequest(c, "active is required")
	}

	if err := h.relay.SetStatus(req.Session, *req.Active); err != nil {
		h.logger.Error().Err(err).Str("session", req.Session).Msg("status write failed")
		return serverError(c)
	}

	return c.JSON(fiber.Map{"ok": true})
}

// ListViewers handles GET /api/v1/viewers.
func (h *Handlers) ListViewers(c *fiber.Ctx) error {
	raw := c.Query("operatorId")
	if raw == "" {
		return badRequest(c, "operatorId is required")
	}
	operatorID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return badRequest(c, "operatorId must be an integer")
	}

	viewers, err := h.viewers.List(operatorID)
	if err != nil {
		h.logger.Error().Err(err).Int64("operator_id", operatorID).Msg("viewer list failed")
		return serverError(c)
	}

	return c.JSON(ViewersResponse{OK: true, Viewers: viewers})
}

// RegisterViewer handles POST /api/v1/viewers: a presence heartbeat.
func (h *Handlers) RegisterViewer(c *fiber.Ctx) error {
	var req ViewerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.DeviceID == "" {
		return badRequest(c, "deviceId is required")
	}
	if req.OperatorName == "" {
		return badRequest(c, "operatorName is required")
	}
	if req.OperatorID == nil {
		return badRequest(c, "operatorId is required")
	}

	if err := h.viewers.Register(req.DeviceID, req.OperatorName, *req.OperatorID); err != nil {
		h.logger.Error().Err(err).Str("device_id", req.DeviceID).Msg("viewer register failed")
		return serverError(c)
	}

	return c.JSON(fiber.Map{"ok": true})
}

// UnregisterViewer handles DELETE /api/v1/viewers.
func (h *Handlers) UnregisterViewer(c *fiber.Ctx) error {
	deviceID := c.Query("deviceId")
	if deviceID == "" {
		return badRequest(c, "deviceId is required")
	}

	if err := h.viewers.Unregister(deviceID); err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("viewer unregister failed")
		return serverError(c)
	}

	return c.JSON(fiber.Map{"ok": true})
}

// Login handles POST /api/v1/login. The credential check is a fixed
// format, not real authentication: it exists to derive the operator's
// session key and hand out a token for the admin surface.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Operator == "" {
		return badRequest(c, "operator is required")
	}
	if req.Password == "" {
		return badRequest(c, "password is required")
	}

	operatorID, ok := parseOperator(req.Operator)
	if !ok {
		return unauthorized(c, "unknown operator")
	}

	token, err := h.auth.issueToken(operatorID, req.Operator)
	if err != nil {
		h.logger.Error().Err(err).Str("operator", req.Operator).Msg("token issue failed")
		return serverError(c)
	}

	h.logger.Info().Str("operator", req.Operator).Msg("operator logged in")
	return c.JSON(LoginResponse{
		OK:         true,
		Token:      token,
		Session:    req.Operator,
		OperatorID: operatorID,
	})
}

// GetConfig handles GET /api/v1/config.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	cfg := h.runtime
	return c.JSON(ConfigResponse{
		Environment:     cfg.Environment,
		LogLevel:        cfg.LogLevel,
		ListenAddr:      cfg.ListenAddr,
		SendTTLDefault:  cfg.SendTTLDefault.String(),
		SendTTLMin:      cfg.SendTTLMin.String(),
		SendTTLMax:      cfg.SendTTLMax.String(),
		ViewerHeartbeat: cfg.ViewerHeartbeat.String(),
		SessionMaxAge:   cfg.SessionMaxAge.String(),
		SweepInterval:   cfg.SweepInterval.String(),
		AuthMode:        cfg.AuthMode,
	})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
