package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"collicasa-bot/internal/backend"
	"collicasa-bot/internal/service"
)

const (
	cbOpenPrefix = "open:"
	cbSnapPrefix = "snap:"

	healthCheckTimeout = 15 * time.Second
	requestTimeout     = 30 * time.Second
)

// sender is the part of the Bot API used by handlers.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot relays Telegram commands to the access-control backend.
type Bot struct {
	api      sender
	client   *tgbotapi.BotAPI
	access   *service.AccessService
	history  *service.HistoryService
	tenantID string
	log      *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func New(token string, access *service.AccessService, history *service.HistoryService, tenantID string, log *zap.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("bot authorized", zap.String("account", client.Self.UserName))

	return &Bot{
		api:      client,
		client:   client,
		access:   access,
		history:  history,
		tenantID: tenantID,
		log:      log.Named("bot"),
		now:      time.Now,
	}, nil
}

// Start begins polling updates until ctx is cancelled. In-flight handlers
// are awaited before it returns.
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		b.log.Warn("drop pending updates", zap.Error(err))
	}
	b.registerCommands()

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	_ = b.access.CheckBackend(healthCtx)
	cancel()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.client.GetUpdatesChan(updateConfig)

	b.log.Info("bot is running, polling updates")

	go func() {
		<-ctx.Done()
		b.client.StopReceivingUpdates()
	}()

	for update := range updates {
		b.wg.Add(1)
		go func(update tgbotapi.Update) {
			defer b.wg.Done()
			b.dispatch(ctx, update)
		}(update)
	}

	b.wg.Wait()
	b.log.Info("bot shutdown complete")
	return ctx.Err()
}

func (b *Bot) registerCommands() {
	cmds := make([]tgbotapi.BotCommand, 0, len(commandList))
	for _, c := range commandList {
		cmds = append(cmds, tgbotapi.BotCommand{Command: c.name, Description: c.description})
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		b.log.Warn("set bot commands", zap.Error(err))
	}
}

// dispatch routes one update and turns handler panics into a reply.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			if chat := update.FromChat(); chat != nil {
				_ = b.sendText(chat.ID, textInternalError)
			}
		}
	}()

	var err error
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil || !cb.Message.Chat.IsPrivate() {
			return
		}
		err = b.handleCallback(ctx, cb)
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		err = b.handleMessage(ctx, update.Message)
	}
	if err != nil {
		b.log.Error("handle update", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
		return b.sendText(msg.Chat.ID, "I didn't understand that. Use /help to see the available commands.")
	}

	b.log.Info("command received",
		zap.Int64("telegram_id", msg.From.ID),
		zap.String("username", msg.From.UserName),
		zap.String("command", msg.Command()))
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendWithReplyMarkup(chatID, "📋 <b>Available Commands</b>\n"+commandHelp(), mainMenuKeyboard())
	case "open_pedestrian":
		return b.openGate(ctx, chatID, msg.From, backend.GatePedestrian)
	case "open_visits":
		return b.openGate(ctx, chatID, msg.From, backend.GateVisits)
	case "snapshot_pedestrian":
		return b.snapshot(ctx, chatID, msg.From, backend.CameraPedestrian)
	case "snapshot_visits":
		return b.snapshot(ctx, chatID, msg.From, backend.CameraVisits)
	case "snapshot_front_door":
		return b.snapshot(ctx, chatID, msg.From, backend.CameraFrontDoor)
	case "history":
		return b.handleHistory(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "logout":
		b.access.Logout(msg.From.ID)
		return b.sendText(chatID, "👋 Session cleared. Use /start to authenticate again.")
	default:
		return b.sendText(chatID, "Unknown command. Use /help to see the available commands.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	_, err := b.access.Login(reqCtx, identity(msg.From))
	switch {
	case err == nil:
		text := fmt.Sprintf(
			"👋 Welcome to ColliCasa Access Control Bot!\n\n"+
				"Hi %s! You've been successfully authenticated.\n\n"+
				"📋 Available Commands:\n%s\n\n"+
				"🔧 Status: ✅ Authenticated\n"+
				"Tenant ID: %s",
			escape(name), commandHelp(), escape(b.tenantID))
		return b.sendWithReplyMarkup(msg.Chat.ID, text, mainMenuKeyboard())
	case errors.Is(err, service.ErrNotRegistered):
		text := fmt.Sprintf(
			"👋 Welcome to ColliCasa Access Control Bot!\n\n"+
				"Hi %s!\n\n"+
				"⚠️ You are not registered in the system.\n"+
				"Please contact your administrator to register your Telegram account.\n\n"+
				"Your Telegram ID: <code>%d</code>",
			escape(name), msg.From.ID)
		return b.sendText(msg.Chat.ID, text)
	default:
		b.log.Error("login failed", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "❌ Sorry, an error occurred while processing your request.")
	}
}

func (b *Bot) openGate(ctx context.Context, chatID int64, from *tgbotapi.User, gate backend.Gate) error {
	label := gateLabels[gate]
	if err := b.sendText(chatID, fmt.Sprintf("🔄 Opening %s gate...", label)); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if _, err := b.access.OpenGate(reqCtx, identity(from), gate); err != nil {
		denied := fmt.Sprintf("❌ You don't have permission to open the %s gate.\nPlease contact your administrator.", label)
		return b.sendText(chatID, b.failureText(err, from.ID, denied, fmt.Sprintf("Failed to open %s gate", label)))
	}

	return b.sendWithReplyMarkup(chatID,
		fmt.Sprintf("✅ %s gate opened successfully!", capitalize(label)),
		actionKeyboard("🔓 Open again", cbOpenPrefix+string(gate)))
}

func (b *Bot) snapshot(ctx context.Context, chatID int64, from *tgbotapi.User, camera backend.Camera) error {
	label := cameraLabels[camera]
	if err := b.sendText(chatID, fmt.Sprintf("📷 Capturing %s camera snapshot...", label)); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto)); err != nil {
		b.log.Debug("chat action", zap.Error(err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	image, err := b.access.Snapshot(reqCtx, identity(from), camera)
	if err != nil {
		denied := fmt.Sprintf("❌ You don't have permission to view the %s camera.\nPlease contact your administrator.", label)
		if camera == backend.CameraFrontDoor {
			denied = "❌ You don't have permission to view the front door camera.\nThis camera is restricted to administrators only."
		}
		return b.sendText(chatID, b.failureText(err, from.ID, denied, "Failed to get camera snapshot"))
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "snapshot_" + string(camera) + ".jpg", Bytes: image})
	photo.Caption = fmt.Sprintf("📸 %s camera snapshot", capitalize(label))
	photo.ReplyMarkup = actionKeyboard("🔄 Refresh", cbSnapPrefix+string(camera))
	_, err = b.api.Send(photo)
	return err
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	text, err := b.history.Recent(reqCtx, msg.From.ID, b.now())
	if err != nil {
		b.log.Error("load history", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "❌ Could not load your recent activity.")
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	var sb strings.Builder
	sb.WriteString("🔧 <b>Status</b>\n")

	if rec, ok := b.access.Session(msg.From.ID); ok {
		sb.WriteString(fmt.Sprintf("• Session: ✅ Authenticated until %s\n", rec.ExpiresAt.In(time.Local).Format("2006-01-02 15:04")))
		if rec.ResidentID != "" {
			sb.WriteString(fmt.Sprintf("• Resident ID: <code>%s</code>\n", escape(rec.ResidentID)))
		}
	} else {
		sb.WriteString("• Session: ❌ Not authenticated (use /start)\n")
	}

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := b.access.CheckBackend(healthCtx); err != nil {
		sb.WriteString("• Backend: ⚠️ unreachable\n")
	} else {
		sb.WriteString("• Backend: ✅ reachable\n")
	}
	sb.WriteString(fmt.Sprintf("• Tenant ID: %s", escape(b.tenantID)))

	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Debug("callback ack", zap.Error(err))
	}

	chatID := cb.Message.Chat.ID
	b.log.Info("callback received", zap.Int64("telegram_id", cb.From.ID), zap.String("data", cb.Data))

	switch {
	case strings.HasPrefix(cb.Data, cbOpenPrefix):
		gate := backend.Gate(strings.TrimPrefix(cb.Data, cbOpenPrefix))
		if _, ok := gateLabels[gate]; !ok {
			return nil
		}
		return b.openGate(ctx, chatID, cb.From, gate)
	case strings.HasPrefix(cb.Data, cbSnapPrefix):
		camera := backend.Camera(strings.TrimPrefix(cb.Data, cbSnapPrefix))
		if _, ok := cameraLabels[camera]; !ok {
			return nil
		}
		return b.snapshot(ctx, chatID, cb.From, camera)
	default:
		return nil
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(msg.Text)
	switch text {
	case menuOpenPedestrian:
		return true, b.openGate(ctx, msg.Chat.ID, msg.From, backend.GatePedestrian)
	case menuOpenVisits:
		return true, b.openGate(ctx, msg.Chat.ID, msg.From, backend.GateVisits)
	case menuSnapPedestrian:
		return true, b.snapshot(ctx, msg.Chat.ID, msg.From, backend.CameraPedestrian)
	case menuSnapVisits:
		return true, b.snapshot(ctx, msg.Chat.ID, msg.From, backend.CameraVisits)
	case menuSnapFrontDoor:
		return true, b.snapshot(ctx, msg.Chat.ID, msg.From, backend.CameraFrontDoor)
	case menuHistory:
		return true, b.handleHistory(ctx, msg)
	default:
		return false, nil
	}
}

// failureText picks the reply for a failed gate or camera request.
func (b *Bot) failureText(err error, telegramID int64, denied, failure string) string {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		return "⏳ Too many requests. Please wait a moment and try again."
	case errors.Is(err, service.ErrNotRegistered):
		return fmt.Sprintf("❌ You are not authenticated. Your Telegram account is not registered in the system.\n"+
			"Please contact your administrator, then use /start.\n\nYour Telegram ID: <code>%d</code>", telegramID)
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, backend.ErrForbidden):
		return denied
	default:
		return fmt.Sprintf("❌ %s: %s", failure, escape(reason(err)))
	}
}

// reason extracts a short user-facing cause from a backend error.
func reason(err error) string {
	var gateErr *backend.GateError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &gateErr):
		return gateErr.Error()
	case errors.As(err, &apiErr):
		return fmt.Sprintf("API returned status %d", apiErr.StatusCode)
	case errors.Is(err, backend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return "Request failed"
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func identity(u *tgbotapi.User) service.Identity {
	return service.Identity{
		TelegramID: u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.UserName,
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
