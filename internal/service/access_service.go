package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"collicasa-bot/internal/backend"
	"collicasa-bot/internal/model"
	"collicasa-bot/internal/repository"
	"collicasa-bot/internal/session"
)

var (
	ErrNotRegistered    = errors.New("telegram account is not registered")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRateLimited      = errors.New("too many requests")
)

const auditTimeout = 5 * time.Second

// Identity is the Telegram user behind a command.
type Identity struct {
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
}

// Backend is the subset of the access-control API used by the service.
type Backend interface {
	VerifyTelegramUser(ctx context.Context, telegramID int64) (*backend.Credentials, error)
	OpenGate(ctx context.Context, token string, gate backend.Gate) (*backend.GateResult, error)
	CameraSnapshot(ctx context.Context, token string, camera backend.Camera) ([]byte, error)
	Health(ctx context.Context) error
}

// GateAction is the permission name for opening a gate.
func GateAction(gate backend.Gate) string { return "open_" + string(gate) }

// CameraAction is the permission name for viewing a camera.
func CameraAction(camera backend.Camera) string { return "snapshot_" + string(camera) }

// AccessService wraps login, gate and camera calls with session handling and auditing.
type AccessService struct {
	api      Backend
	sessions *session.Store
	userRepo *repository.UserRepository
	events   *repository.EventRepository
	log      *zap.Logger
	now      func() time.Time

	limitMu    sync.Mutex
	limiters   map[int64]*rate.Limiter
	limitRate  rate.Limit
	limitBurst int
}

// RateLimit configures the per-user command budget.
type RateLimit struct {
	PerMinute int
	Burst     int
}

func NewAccessService(api Backend, sessions *session.Store, userRepo *repository.UserRepository, events *repository.EventRepository, limit RateLimit, log *zap.Logger) *AccessService {
	if log == nil {
		log = zap.NewNop()
	}
	perMinute := limit.PerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}
	return &AccessService{
		api:        api,
		sessions:   sessions,
		userRepo:   userRepo,
		events:     events,
		log:        log.Named("access"),
		now:        time.Now,
		limiters:   make(map[int64]*rate.Limiter),
		limitRate:  rate.Limit(float64(perMinute) / 60),
		limitBurst: burst,
	}
}

// Login verifies the user with the backend and stores a fresh session.
func (s *AccessService) Login(ctx context.Context, id Identity) (session.Record, error) {
	if _, err := s.userRepo.UpsertFromTelegram(ctx, id.TelegramID, id.FirstName, id.LastName, id.Username); err != nil {
		s.log.Warn("upsert user", zap.Int64("telegram_id", id.TelegramID), zap.Error(err))
	}

	creds, err := s.api.VerifyTelegramUser(ctx, id.TelegramID)
	if err != nil {
		s.sessions.Delete(id.TelegramID)
		if isRejection(err) {
			s.log.Info("telegram user not registered", zap.Int64("telegram_id", id.TelegramID), zap.Error(err))
			if markErr := s.userRepo.MarkUnregistered(ctx, id.TelegramID); markErr != nil {
				s.log.Warn("mark unregistered", zap.Error(markErr))
			}
			return session.Record{}, ErrNotRegistered
		}
		return session.Record{}, err
	}

	rec := s.sessions.Put(id.TelegramID, creds.AccessToken, creds.ResidentID, creds.Permissions)
	if err := s.userRepo.MarkLogin(ctx, id.TelegramID, creds.ResidentID, s.now()); err != nil {
		s.log.Warn("mark login", zap.Int64("telegram_id", id.TelegramID), zap.Error(err))
	}
	s.log.Info("user verified",
		zap.Int64("telegram_id", id.TelegramID),
		zap.String("resident_id", creds.ResidentID),
		zap.Time("expires_at", rec.ExpiresAt))
	return rec, nil
}

// Session returns the live session of a user, if any.
func (s *AccessService) Session(telegramID int64) (session.Record, bool) {
	return s.sessions.Get(telegramID)
}

func (s *AccessService) Authenticated(telegramID int64) bool {
	_, ok := s.sessions.Get(telegramID)
	return ok
}

func (s *AccessService) Logout(telegramID int64) {
	s.sessions.Delete(telegramID)
	s.log.Info("session dropped", zap.Int64("telegram_id", telegramID))
}

// OpenGate unlocks a gate for the user.
func (s *AccessService) OpenGate(ctx context.Context, id Identity, gate backend.Gate) (*backend.GateResult, error) {
	var result *backend.GateResult
	err := s.authorized(ctx, id, GateAction(gate), func(token string) error {
		res, err := s.api.OpenGate(ctx, token, gate)
		result = res
		return err
	})
	return result, err
}

// Snapshot fetches a camera image for the user.
func (s *AccessService) Snapshot(ctx context.Context, id Identity, camera backend.Camera) ([]byte, error) {
	var image []byte
	err := s.authorized(ctx, id, CameraAction(camera), func(token string) error {
		data, err := s.api.CameraSnapshot(ctx, token, camera)
		image = data
		return err
	})
	return image, err
}

// Allow consumes one command from the user's rate budget.
func (s *AccessService) Allow(telegramID int64) bool {
	s.limitMu.Lock()
	lim, ok := s.limiters[telegramID]
	if !ok {
		lim = rate.NewLimiter(s.limitRate, s.limitBurst)
		s.limiters[telegramID] = lim
	}
	s.limitMu.Unlock()
	return lim.Allow()
}

// PruneLimiters forgets users whose bucket has refilled completely.
func (s *AccessService) PruneLimiters() int {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	removed := 0
	for id, lim := range s.limiters {
		if lim.Tokens() >= float64(s.limitBurst) {
			delete(s.limiters, id)
			removed++
		}
	}
	return removed
}

// authorized runs call with a valid user token, logging in when the session
// is missing and retrying once after a 401. Every attempt is audited.
func (s *AccessService) authorized(ctx context.Context, id Identity, action string, call func(token string) error) (err error) {
	defer func() {
		s.record(ctx, id.TelegramID, action, err)
	}()

	if !s.Allow(id.TelegramID) {
		return ErrRateLimited
	}

	rec, ok := s.sessions.Get(id.TelegramID)
	if !ok {
		if rec, err = s.Login(ctx, id); err != nil {
			return err
		}
	}

	if !rec.Allows(action) {
		return ErrPermissionDenied
	}

	err = call(rec.Token)
	if !errors.Is(err, backend.ErrUnauthorized) {
		return err
	}

	s.log.Info("token rejected, logging in again", zap.Int64("telegram_id", id.TelegramID), zap.String("action", action))
	s.sessions.Delete(id.TelegramID)
	if rec, err = s.Login(ctx, id); err != nil {
		return err
	}
	if !rec.Allows(action) {
		return ErrPermissionDenied
	}
	return call(rec.Token)
}

// record writes the audit row on a context detached from the request, so a
// request that timed out is still audited.
func (s *AccessService) record(ctx context.Context, telegramID int64, action string, err error) {
	outcome := Classify(err)
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	fields := []zap.Field{
		zap.Int64("telegram_id", telegramID),
		zap.String("action", action),
		zap.String("outcome", string(outcome)),
	}
	if err != nil {
		s.log.Warn("access request failed", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("access request done", fields...)
	}

	if errors.Is(err, ErrRateLimited) {
		return
	}
	event := &model.AccessEvent{
		TelegramID: telegramID,
		Action:     action,
		Outcome:    outcome,
		Detail:     detail,
		CreatedAt:  s.now(),
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.events.Create(auditCtx, event); err != nil {
		s.log.Warn("store access event", zap.Error(err))
	}
}

// Classify maps an access error onto an audit outcome.
func Classify(err error) model.Outcome {
	switch {
	case err == nil:
		return model.OutcomeOK
	case errors.Is(err, ErrNotRegistered), errors.Is(err, backend.ErrUnauthorized):
		return model.OutcomeUnauthenticated
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, backend.ErrForbidden):
		return model.OutcomeDenied
	default:
		return model.OutcomeFailed
	}
}

// CheckBackend probes backend health and logs the result.
func (s *AccessService) CheckBackend(ctx context.Context) error {
	if err := s.api.Health(ctx); err != nil {
		s.log.Warn("backend API connection failed - bot will continue but API calls may fail", zap.Error(err))
		return err
	}
	s.log.Info("backend API connection successful")
	return nil
}

// PurgeSessions drops expired sessions.
func (s *AccessService) PurgeSessions() int {
	n := s.sessions.PurgeExpired()
	if n > 0 {
		s.log.Info("expired sessions purged", zap.Int("count", n))
	}
	return n
}

// PruneEvents removes audit rows older than retention.
func (s *AccessService) PruneEvents(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	n, err := s.events.DeleteOlderThan(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	if n > 0 {
		s.log.Info("old access events pruned", zap.Int64("count", n))
	}
	return n, nil
}

func isRejection(err error) bool {
	return errors.Is(err, backend.ErrNotRegistered) ||
		errors.Is(err, backend.ErrNotFound) ||
		errors.Is(err, backend.ErrUnauthorized) ||
		errors.Is(err, backend.ErrForbidden)
}
