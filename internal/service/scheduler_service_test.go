package service

import (
	"testing"
	"time"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("03:30")
	if err != nil {
		t.Fatalf("buildDailySpec: %v", err)
	}
	if want := "0 30 3 * * *"; spec != want {
		t.Errorf("got %q, want %q", spec, want)
	}
	for _, bad := range []string{"3", "24:00", "12:60", "aa:bb"} {
		if _, err := buildDailySpec(bad); err == nil {
			t.Errorf("buildDailySpec(%q) should fail", bad)
		}
	}
}

func TestScheduleInterval(t *testing.T) {
	s := NewSchedulerService(time.UTC, nil)
	if _, err := s.ScheduleInterval(0, func() {}); err == nil {
		t.Error("zero interval should be rejected")
	}
	if _, err := s.ScheduleInterval(time.Minute, func() {}); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestScheduleMaintenance(t *testing.T) {
	f := newFixture(t, RateLimit{})

	s := NewSchedulerService(time.UTC, nil)
	if err := ScheduleMaintenance(s, f.svc, MaintenanceConfig{HealthCheckInterval: 5 * time.Minute, EventRetention: 24 * time.Hour}, nil); err != nil {
		t.Fatalf("ScheduleMaintenance: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}

	disabled := NewSchedulerService(time.UTC, nil)
	if err := ScheduleMaintenance(disabled, f.svc, MaintenanceConfig{}, nil); err != nil {
		t.Fatalf("ScheduleMaintenance: %v", err)
	}
	if disabled.Len() != 1 {
		t.Errorf("Len = %d, want only the session purge", disabled.Len())
	}
}
