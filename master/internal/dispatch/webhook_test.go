package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vantagehq/vantage/pkg/types"
)

func webhookNotification(url string) Notification {
	return Notification{
		Alarm:   types.Alarm{ID: 7, Monitor: "check-1"},
		Event:   dispatchEvent(),
		User:    dispatchUser(),
		Contact: types.Contact{Medium: "webhook", Address: url},
	}
}

func TestWebhook_PostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type: got %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	w := NewWebhook("dc-east")
	if err := w.Notify(context.Background(), webhookNotification(srv.URL)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.Alarm != 7 || got.Monitor != "check-1" || got.Datacenter != "dc-east" {
		t.Errorf("payload: got %+v", got)
	}
	if got.Details["match"] != "ERROR boom" {
		t.Errorf("payload details: got %v", got.Details)
	}
}

func TestWebhook_ReceiverErrorDoesNotFailDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook("dc-east")
	if err := w.Notify(context.Background(), webhookNotification(srv.URL)); err != nil {
		t.Errorf("Notify: receiver 500 must not fail dispatch, got %v", err)
	}
}

func TestWebhook_UnreachableReceiverDoesNotFailDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	w := NewWebhook("dc-east")
	if err := w.Notify(context.Background(), webhookNotification(srv.URL)); err != nil {
		t.Errorf("Notify: dead receiver must not fail dispatch, got %v", err)
	}
}

func TestWebhook_SanitizeAddress(t *testing.T) {
	w := NewWebhook("dc-east")

	if _, err := w.SanitizeAddress("https://hooks.example.com/notify"); err != nil {
		t.Errorf("SanitizeAddress rejected a valid url: %v", err)
	}
	for _, bad := range []string{"", "ftp://example.com", "not a url", "http://"} {
		if _, err := w.SanitizeAddress(bad); err == nil {
			t.Errorf("SanitizeAddress accepted %q", bad)
		}
	}
}
