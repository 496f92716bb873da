package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:      srv.URL + "/",
		ServiceToken: "svc-token",
		TenantID:     "tenant-1",
		Timeout:      2 * time.Second,
	}, zap.NewNop())
	c.newRequestID = func() string { return "req-1" }
	return c
}

func TestVerifyTelegramUser(t *testing.T) {
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/auth/verify/telegram" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		wantHeaders := map[string]string{
			"Authorization": "Bearer svc-token",
			"X-Tenant-ID":   "tenant-1",
			"X-Request-ID":  "req-1",
			"Content-Type":  "application/json",
		}
		for k, v := range wantHeaders {
			if got := r.Header.Get(k); got != v {
				t.Errorf("header %s = %q, want %q", k, got, v)
			}
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"access_token":"jwt","resident_id":"r-7","permissions":["open_visits"]}`))
	})

	creds, err := c.VerifyTelegramUser(context.Background(), 4242)
	if err != nil {
		t.Fatalf("VerifyTelegramUser: %v", err)
	}
	want := &Credentials{AccessToken: "jwt", ResidentID: "r-7", Permissions: []string{"open_visits"}}
	if diff := cmp.Diff(want, creds); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"telegram_id": "4242"}, gotBody); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyTelegramUserRejected(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown user", http.StatusNotFound)
		})
		_, err := c.VerifyTelegramUser(context.Background(), 1)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			t.Fatalf("got %v, want *APIError with 404", err)
		}
	})
	t.Run("empty token", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":""}`))
		})
		_, err := c.VerifyTelegramUser(context.Background(), 1)
		if !errors.Is(err, ErrNotRegistered) {
			t.Fatalf("got %v, want ErrNotRegistered", err)
		}
	})
}

func TestOpenGate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.Header.Get("Authorization"), "Bearer user-jwt"; got != want {
			t.Errorf("Authorization = %q, want %q", got, want)
		}
		switch r.URL.Path {
		case "/api/v1/gate/sip/open/pedestrian":
			_, _ = w.Write([]byte(`{"success":true,"message":"opened"}`))
		case "/api/v1/gate/sip/open/visits":
			_, _ = w.Write([]byte(`{"success":false,"error":"Insufficient permission for gate"}`))
		default:
			http.NotFound(w, r)
		}
	})

	res, err := c.OpenGate(context.Background(), "user-jwt", GatePedestrian)
	if err != nil {
		t.Fatalf("OpenGate(pedestrian): %v", err)
	}
	if !res.Success || res.Message != "opened" {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = c.OpenGate(context.Background(), "user-jwt", GateVisits)
	var gateErr *GateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("got %v, want *GateError", err)
	}
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("permission message should match ErrForbidden: %v", err)
	}
}

func TestOpenGateStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.OpenGate(context.Background(), "jwt", GateVisits)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestCameraSnapshot(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'p', 'g'}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/camera/snapshot/front_door" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(image)
	})

	got, err := c.CameraSnapshot(context.Background(), "jwt", CameraFrontDoor)
	if err != nil {
		t.Fatalf("CameraSnapshot: %v", err)
	}
	if diff := cmp.Diff(image, got); diff != "" {
		t.Errorf("image mismatch (-want +got):\n%s", diff)
	}
}

func TestCameraSnapshotEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := c.CameraSnapshot(context.Background(), "jwt", CameraVisits); err == nil {
		t.Fatal("expected error for empty snapshot")
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.http.Timeout = 50 * time.Millisecond

	err := c.Health(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
