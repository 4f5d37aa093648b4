package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sirupsen/logrus/hooks/test"
)

func boolPtr(b bool) *bool { return &b }

func sampleAlert() EmergencyAlert {
	return EmergencyAlert{
		CallID:           "call-1",
		EmergencyID:      "em-1",
		DriverName:       "Mike",
		LoadNumber:       "7891-B",
		Type:             "accident",
		Location:         "I-40 mile marker 212",
		EscalationStatus: "connecting_to_dispatcher",
		InjuriesReported: boolPtr(false),
		LoadSecure:       boolPtr(true),
		ReportedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEmergencyAlertText(t *testing.T) {
	a := sampleAlert()
	if got, want := a.Title(), "ACCIDENT reported by Mike"; got != want {
		t.Errorf("Title() = %q, want %q", got, want)
	}
	body := a.Body()
	for _, want := range []string{"I-40 mile marker 212", "Load: 7891-B", "Injuries: no", "Load secure: yes"} {
		if !strings.Contains(body, want) {
			t.Errorf("Body() = %q, missing %q", body, want)
		}
	}

	if got := (EmergencyAlert{}).Title(); got != "EMERGENCY reported by driver" {
		t.Errorf("empty Title() = %q", got)
	}
}

func TestDiscordNotifyEmergency(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	d := NewDiscord(srv.URL, log)
	if err := d.NotifyEmergency(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("NotifyEmergency() error = %v", err)
	}

	if got.Content != "@here" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Title != "ACCIDENT reported by Mike" {
		t.Fatalf("embeds = %+v", got.Embeds)
	}
	if got.Embeds[0].Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp = %q", got.Embeds[0].Timestamp)
	}
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	if err := NewDiscord(srv.URL, log).NotifyEmergency(context.Background(), sampleAlert()); err == nil {
		t.Error("expected error for 429")
	}
}

func TestDiscordDisabled(t *testing.T) {
	log, _ := test.NewNullLogger()
	d := NewDiscord("", log)
	if d.Enabled() {
		t.Error("Enabled() = true without URL")
	}
	if err := d.NotifyEmergency(context.Background(), sampleAlert()); err != nil {
		t.Errorf("disabled notify = %v", err)
	}
}

type fakePusher struct {
	mu     sync.Mutex
	tokens []string
	status int
	err    error
}

func (f *fakePusher) Push(n *apns2.Notification) (*apns2.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, n.DeviceToken)
	if f.err != nil {
		return nil, f.err
	}
	return &apns2.Response{StatusCode: f.status, Reason: "BadDeviceToken"}, nil
}

func TestAPNsSendEmergency(t *testing.T) {
	log, _ := test.NewNullLogger()

	t.Run("nil client is a no-op", func(t *testing.T) {
		var c *APNsClient
		if err := c.SendEmergency("tok", sampleAlert()); err != nil {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		fp := &fakePusher{status: 200}
		c := &APNsClient{client: fp, bundleID: "com.example.dispatch", log: log}
		if err := c.SendEmergency("device-token-0123456789", sampleAlert()); err != nil {
			t.Fatalf("err = %v", err)
		}
		if len(fp.tokens) != 1 {
			t.Errorf("pushes = %d", len(fp.tokens))
		}
	})

	t.Run("rejected", func(t *testing.T) {
		fp := &fakePusher{status: 400}
		c := &APNsClient{client: fp, bundleID: "com.example.dispatch", log: log}
		if err := c.SendEmergency("tok", sampleAlert()); err == nil {
			t.Error("expected rejection error")
		}
	})
}

func TestNewAPNsClientDisabled(t *testing.T) {
	log, _ := test.NewNullLogger()
	c, err := NewAPNsClient(APNsConfig{KeyID: "k"}, log)
	if err != nil || c != nil {
		t.Errorf("NewAPNsClient() = %v, %v; want nil, nil", c, err)
	}
}

func TestEscalatorContinuesAfterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	fp := &fakePusher{err: errors.New("network down")}
	apns := &APNsClient{client: fp, bundleID: "b", log: log}

	e := NewEscalator(NewDiscord(srv.URL, log), apns, []string{"a", " ", "b"}, log)
	err := e.NotifyEmergency(context.Background(), sampleAlert())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(fp.tokens) != 2 {
		t.Errorf("pushed to %v, want both devices despite discord failure", fp.tokens)
	}
}

func TestNilEscalator(t *testing.T) {
	var e *Escalator
	if err := e.NotifyEmergency(context.Background(), sampleAlert()); err != nil {
		t.Errorf("err = %v", err)
	}
}
