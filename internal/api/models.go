// Package api exposes the relay over HTTP: send (producer), next
// (consumer), status (gate), viewers (presence), plus the operator
// login and operational probes.
package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qrlink/relay/internal/store"
)

// --- Request DTOs ---

// SendRequest is the payload for POST /api/v1/send. TTL is in
// milliseconds; zero means the server default.
type SendRequest struct {
	Session string `json:"session"`
	ID      string `json:"id"`
	TTL     int64  `json:"ttl,omitempty"`
}

// StatusRequest is the payload for POST /api/v1/status. Active is a
// pointer so a missing field is distinguishable from false.
type StatusRequest struct {
	Session string `json:"session"`
	Active  *bool  `json:"active"`
}

// ViewerRequest is the payload for POST /api/v1/viewers.
type ViewerRequest struct {
	DeviceID     string `json:"deviceId"`
	OperatorName string `json:"operatorName"`
	OperatorID   *int64 `json:"operatorId"`
}

// LoginRequest is the payload for POST /api/v1/login.
type LoginRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

// --- Response DTOs ---

// SendResponse reports an accepted or deduplicated send.
type SendResponse struct {
	OK        bool  `json:"ok"`
	Version   int64 `json:"version"`
	Time      int64 `json:"time"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

// NextResponse reports a poll result; ID is absent when the queue is empty.
type NextResponse struct {
	OK   bool   `json:"ok"`
	ID   string `json:"id,omitempty"`
	Time int64  `json:"time"`
}

// StatusResponse reports the activity gate state.
type StatusResponse struct {
	OK         bool  `json:"ok"`
	Active     bool  `json:"active"`
	LastUpdate int64 `json:"lastUpdate"`
}

// ViewersResponse lists the live viewers of one operator slot.
type ViewersResponse struct {
	OK      bool           `json:"ok"`
	Viewers []store.Viewer `json:"viewers"`
}

// LoginResponse carries the issued token and derived session key.
type LoginResponse struct {
	OK         bool   `json:"ok"`
	Token      string `json:"token"`
	Session    string `json:"session"`
	OperatorID int64  `json:"operatorId"`
}

// ConfigResponse exposes the effective runtime configuration.
type ConfigResponse struct {
	Environment     string `json:"environment"`
	LogLevel        string `json:"logLevel"`
	ListenAddr      string `json:"listenAddr"`
	SendTTLDefault  string `json:"sendTtlDefault"`
	SendTTLMin      string `json:"sendTtlMin"`
	SendTTLMax      string `json:"sendTtlMax"`
	ViewerHeartbeat string `json:"viewerHeartbeat"`
	SessionMaxAge   string `json:"sessionMaxAge"`
	SweepInterval   string `json:"sweepInterval"`
	AuthMode        string `json:"authMode"`
}

// --- Error envelopes ---

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": msg})
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": msg})
}

// gateClosed is the distinguishable "not active" signal: the sender can
// tell "start the session first" apart from a malformed request.
func gateClosed(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "sessionActive": false})
}

func serverError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "internal error"})
}
