package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"collicasa-bot/internal/model"
)

func TestHistoryRecent(t *testing.T) {
	f := newFixture(t, RateLimit{})
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	history := NewHistoryService(f.events, 5)

	empty, err := history.Recent(ctx, 1, now)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !strings.Contains(empty, "no requests yet") {
		t.Errorf("empty history: %q", empty)
	}

	events := []*model.AccessEvent{
		{TelegramID: 1, Action: "open_visits", Outcome: model.OutcomeOK, CreatedAt: now.Add(-2 * time.Hour)},
		{TelegramID: 1, Action: "snapshot_front_door", Outcome: model.OutcomeDenied, Detail: "API returned status 403: <forbidden>", CreatedAt: now.Add(-5 * time.Minute)},
	}
	for _, ev := range events {
		if err := f.events.Create(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	text, err := history.Recent(ctx, 1, now)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	for _, want := range []string{
		"⛔ Front door camera snapshot <i>(5 min ago)</i>",
		"&lt;forbidden&gt;",
		"✅ Open visits gate <i>(2 h ago)</i>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("history missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "Front door") > strings.Index(text, "Open visits") {
		t.Errorf("newest event should come first:\n%s", text)
	}
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		10 * time.Second: "just now",
		3 * time.Minute:  "3 min ago",
		5 * time.Hour:    "5 h ago",
		48 * time.Hour:   "2026-05-30 12:00",
	}
	for d, want := range cases {
		if got := ago(now.Add(-d), now); got != want {
			t.Errorf("ago(-%v) = %q, want %q", d, got, want)
		}
	}
}
