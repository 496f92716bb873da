// Package backend is the HTTP client for the ColliCasa access-control API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBody     = 4 << 10
	maxSnapshotBytes = 10 << 20
)

// Gate identifies a physical gate that can be opened.
type Gate string

const (
	GatePedestrian Gate = "pedestrian"
	GateVisits     Gate = "visits"
)

// Camera identifies a camera that can produce a snapshot.
type Camera string

const (
	CameraPedestrian Camera = "pedestrian"
	CameraVisits     Camera = "visits"
	CameraFrontDoor  Camera = "front_door"
)

// Config holds connection settings for the backend.
type Config struct {
	BaseURL      string
	ServiceToken string
	TenantID     string
	Timeout      time.Duration
}

// Credentials is the verification response for a Telegram user.
type Credentials struct {
	AccessToken string   `json:"access_token"`
	ResidentID  string   `json:"resident_id"`
	Permissions []string `json:"permissions"`
}

// GateResult is the body returned by the gate endpoints.
type GateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client talks to the access-control REST API.
type Client struct {
	baseURL      string
	serviceToken string
	tenantID     string
	http         *http.Client
	log          *zap.Logger
	newRequestID func() string
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		serviceToken: cfg.ServiceToken,
		tenantID:     cfg.TenantID,
		http:         &http.Client{Timeout: timeout},
		log:          log.Named("backend"),
		newRequestID: uuid.NewString,
	}
}

// VerifyTelegramUser exchanges a Telegram user ID for a user JWT.
func (c *Client) VerifyTelegramUser(ctx context.Context, telegramID int64) (*Credentials, error) {
	body := map[string]string{"telegram_id": strconv.FormatInt(telegramID, 10)}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/auth/verify/telegram", "", body)
	if err != nil {
		return nil, fmt.Errorf("verify telegram user: %w", err)
	}
	defer resp.Body.Close()

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode verification response: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, ErrNotRegistered
	}
	return &creds, nil
}

// OpenGate asks the backend to unlock the given gate on behalf of a user.
func (c *Client) OpenGate(ctx context.Context, token string, gate Gate) (*GateResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/gate/sip/open/"+string(gate), token, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s gate: %w", gate, err)
	}
	defer resp.Body.Close()

	var result GateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gate response: %w", err)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		return &result, &GateError{Message: msg}
	}
	return &result, nil
}

// CameraSnapshot fetches a still image from the given camera.
func (c *Client) CameraSnapshot(ctx context.Context, token string, camera Camera) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/camera/snapshot/"+string(camera), token, nil)
	if err != nil {
		return nil, fmt.Errorf("%s snapshot: %w", camera, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s snapshot: %w", camera, err)
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("%s snapshot exceeds %d bytes", camera, maxSnapshotBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s snapshot is empty", camera)
	}
	return data, nil
}

// Health probes the backend with the service token.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// do sends a request and returns the response only for 2xx statuses; the
// caller must close its body. An empty token selects the service token.
func (c *Client) do(ctx context.Context, method, path, token string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if token == "" {
		token = c.serviceToken
	}
	requestID := c.newRequestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Authorization", "Bearer "+token)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}

	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
