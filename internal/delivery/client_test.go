/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/botdeckhq/botdeck/internal/models"
)

func testRequest() Request {
	return Request{
		RuleID:         "rule-1",
		ChannelID:      "chan-1",
		TelegramChatID: "-100123",
		Language:       "en",
		ContentType:    models.ContentTypeNews,
		ScheduledFor:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatchSignsAndDecodesEnvelope(t *testing.T) {
	const secret = "engine-secret"

	var gotBody []byte
	var gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Botdeck-Signature")
		json.NewEncoder(w).Encode(Response{Success: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, secret, 5*time.Second, zerolog.Nop())
	if err := client.Dispatch(context.Background(), testRequest()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}

	var decoded Request
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
	if decoded.ContentType != models.ContentTypeNews {
		t.Fatalf("content_type = %q, want %q", decoded.ContentType, models.ContentTypeNews)
	}
}

func TestDispatchEngineRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Success: false, Error: "unknown channel"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, zerolog.Nop())
	err := client.Dispatch(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error for rejected dispatch")
	}
}

func TestDispatchHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, zerolog.Nop())
	if err := client.Dispatch(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestDispatchWithoutEndpoint(t *testing.T) {
	client := NewClient("", "", 5*time.Second, zerolog.Nop())
	err := client.Dispatch(context.Background(), testRequest())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("error = %v, want ErrEngineUnavailable", err)
	}
}
