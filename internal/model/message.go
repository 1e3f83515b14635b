package model

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// WAIDUnknown is the sentinel conversation id used when no sender
// identity can be extracted from a payload. A record never has an
// empty wa_id.
const WAIDUnknown = "unknown"

// Message is the canonical, persisted representation of one inbound or
// outbound message. Seq is the sqlite insertion counter and only exists
// to break createdAt ties; it never leaves the API.
type Message struct {
	Seq            int64           `db:"seq" json:"-"`
	ID             string          `db:"id" json:"_id"`
	ProviderID     *string         `db:"provider_id" json:"id"`
	ProviderMetaID *string         `db:"provider_meta_id" json:"meta_msg_id"`
	WAID           string          `db:"wa_id" json:"wa_id"`
	Name           string          `db:"name" json:"name"`
	Number         string          `db:"number" json:"number"`
	Text           string          `db:"text" json:"text"`
	Media          json.RawMessage `db:"media" json:"media,omitempty"`
	Status         Status          `db:"status" json:"status"`
	RawPayload     json.RawMessage `db:"raw_payload" json:"raw_payload"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// ConversationSummary is the derived latest-message view for one wa_id.
// Recomputed on every query, never stored.
type ConversationSummary struct {
	WAID        string    `json:"_id"`
	LastMessage string    `json:"lastMessage"`
	LastAt      time.Time `json:"lastAt"`
	Name        string    `json:"name"`
	Number      string    `json:"number"`
	LastStatus  Status    `json:"lastStatus"`
}

type SendMessageParams struct {
	WAID   string `json:"wa_id"`
	Text   string `json:"text"`
	Name   string `json:"name"`
	Number string `json:"number"`
}
