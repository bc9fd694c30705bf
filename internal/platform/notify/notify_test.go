package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestWebhookSink_PublishesJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "#ti-status", zerolog.Nop())
	err := sink.Publish(context.Background(), Message{
		Title: "Day sync completed",
		Text:  "3 inserted, 1 updated",
		Level: LevelInfo,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got.Channel != "#ti-status" {
		t.Errorf("channel = %q, want default #ti-status", got.Channel)
	}
	if got.Title != "Day sync completed" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Level != LevelInfo {
		t.Errorf("level = %q, want info", got.Level)
	}
}

func TestWebhookSink_ExplicitChannelWins(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "#ti-status", zerolog.Nop())
	if err := sink.Publish(context.Background(), Message{Channel: "#oncall", Title: "t"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got.Channel != "#oncall" {
		t.Errorf("channel = %q, want #oncall", got.Channel)
	}
}

func TestWebhookSink_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "#ti-status", zerolog.Nop())
	if err := sink.Publish(context.Background(), Message{Title: "t"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNopSink(t *testing.T) {
	if err := (NopSink{}).Publish(context.Background(), Message{Title: "ignored"}); err != nil {
		t.Fatalf("NopSink should never fail: %v", err)
	}
}
