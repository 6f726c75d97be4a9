package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestInbound_Validate_Defaults(t *testing.T) {
	in := Inbound{Content: "hello"}
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if in.Username != AnonymousUser {
		t.Errorf("Username = %q, want %q", in.Username, AnonymousUser)
	}
	if in.Content != "hello" {
		t.Errorf("Content = %q, want %q", in.Content, "hello")
	}
}

func TestInbound_Validate_Trims(t *testing.T) {
	in := Inbound{Username: "  alice  ", Content: "  hi there  "}
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if in.Username != "alice" {
		t.Errorf("Username = %q, want alice", in.Username)
	}
	if in.Content != "hi there" {
		t.Errorf("Content = %q, want %q", in.Content, "hi there")
	}
}

func TestInbound_Validate_EmptyContent(t *testing.T) {
	cases := []string{"", "   ", "\t\n"}
	for _, content := range cases {
		in := Inbound{Username: "bob", Content: content}
		if err := in.Validate(); err != ErrEmptyContent {
			t.Errorf("Validate(%q) error = %v, want ErrEmptyContent", content, err)
		}
	}
}

func TestInbound_Validate_ContentTooLong(t *testing.T) {
	in := Inbound{Content: strings.Repeat("a", MaxContentLength+1)}
	if err := in.Validate(); err != ErrContentTooLong {
		t.Errorf("Validate() error = %v, want ErrContentTooLong", err)
	}

	// Exactly at the limit is fine
	in = Inbound{Content: strings.Repeat("a", MaxContentLength)}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate() at limit error = %v", err)
	}
}

func TestInbound_Validate_UsernameTooLong(t *testing.T) {
	in := Inbound{Username: strings.Repeat("u", MaxUsernameLength+1), Content: "hi"}
	if err := in.Validate(); err != ErrUsernameLong {
		t.Errorf("Validate() error = %v, want ErrUsernameLong", err)
	}
}

func TestInbound_Validate_CountsRunes(t *testing.T) {
	// 500 two-byte runes exceed 1000 bytes but stay within the character limit
	in := Inbound{Content: strings.Repeat("你好", 250)}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate() multibyte content error = %v", err)
	}
}

func TestMessage_JSONShape(t *testing.T) {
	msg := Message{
		ID:        "507f1f77bcf86cd799439011",
		Room:      "lobby",
		Username:  "alice",
		Content:   "hi",
		CreatedAt: "2025-01-02T03:04:05Z",
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"_id", "room", "username", "content", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("serialized message missing key %q", key)
		}
	}
	if raw["_id"] != "507f1f77bcf86cd799439011" {
		t.Errorf("_id = %v", raw["_id"])
	}
}

func TestFormatTime_UTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2025, 1, 2, 6, 4, 5, 0, loc)
	got := FormatTime(ts)
	if got != "2025-01-02T03:04:05Z" {
		t.Errorf("FormatTime() = %s, want 2025-01-02T03:04:05Z", got)
	}
}
