package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"collicasa-bot/internal/model"
	"collicasa-bot/internal/repository"
)

// HistoryService builds human-readable summaries of recent access requests.
type HistoryService struct {
	events *repository.EventRepository
	limit  int
}

func NewHistoryService(events *repository.EventRepository, limit int) *HistoryService {
	if limit <= 0 {
		limit = 10
	}
	return &HistoryService{events: events, limit: limit}
}

// Recent renders the newest access events of a user as Telegram HTML.
func (s *HistoryService) Recent(ctx context.Context, telegramID int64, now time.Time) (string, error) {
	events, err := s.events.ListRecent(ctx, telegramID, s.limit)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("🗂 <b>Recent activity</b>\n\n")
	if len(events) == 0 {
		builder.WriteString("— no requests yet\n")
		return strings.TrimSpace(builder.String()), nil
	}

	for _, ev := range events {
		builder.WriteString(formatEvent(ev, now))
	}
	return strings.TrimSpace(builder.String()), nil
}

func formatEvent(ev model.AccessEvent, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s", outcomeIcon(ev.Outcome), actionLabel(ev.Action)))
	sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", ago(ev.CreatedAt, now)))
	if ev.Outcome != model.OutcomeOK && ev.Detail != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(shorten(ev.Detail, 120))))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func outcomeIcon(o model.Outcome) string {
	switch o {
	case model.OutcomeOK:
		return "✅"
	case model.OutcomeDenied:
		return "⛔"
	case model.OutcomeUnauthenticated:
		return "🔒"
	default:
		return "❌"
	}
}

var actionLabels = map[string]string{
	"open_pedestrian":     "Open pedestrian gate",
	"open_visits":         "Open visits gate",
	"snapshot_pedestrian": "Pedestrian camera snapshot",
	"snapshot_visits":     "Visits camera snapshot",
	"snapshot_front_door": "Front door camera snapshot",
}

func actionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	return html.EscapeString(action)
}

func ago(at, now time.Time) string {
	d := now.Sub(at)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(d.Hours()))
	default:
		return at.In(now.Location()).Format("2006-01-02 15:04")
	}
}

func shorten(s string, maxLen int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}
