package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chatmirror/chatmirror/internal/model"
)

// Kind is the classification of one raw payload. Unrecognized is a
// valid outcome, not an error: the pipeline reports it as a rejected
// ingest and touches nothing.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindMessageBatch
	KindStatusUpdate
)

// Entry is one extracted message, ready to become a canonical record.
type Entry struct {
	ProviderID *string
	MetaID     *string
	WAID       string
	Name       string
	Number     string
	Text       string
	Media      json.RawMessage
	Timestamp  time.Time
	Raw        json.RawMessage
}

// StatusCommand targets existing records by provider id and/or meta id
// and overwrites their status. No transition lattice is enforced.
type StatusCommand struct {
	ProviderID *string
	MetaID     *string
	Status     model.Status
	Timestamp  time.Time
	Raw        json.RawMessage
}

type Result struct {
	Kind     Kind
	Entries  []Entry
	Statuses []StatusCommand
	// Skipped holds per-entry diagnostics for entries that failed
	// normalization; siblings are unaffected.
	Skipped []string
	// Reason is set for KindUnrecognized only.
	Reason string
}

type envelope struct {
	MetaData *metaData         `json:"metaData"`
	Type     string            `json:"type"`
	Messages []json.RawMessage `json:"messages"`
	Status   json.RawMessage   `json:"status"`
}

type metaData struct {
	Entry []entryBlock `json:"entry"`
}

type entryBlock struct {
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	Contacts []contact         `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
	Metadata *struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
	} `json:"metadata"`
}

type contact struct {
	WAID    string   `json:"wa_id"`
	Profile *profile `json:"profile"`
}

type profile struct {
	WAID string `json:"wa_id"`
	Name string `json:"name"`
}

type messageEntry struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id"`
	MetaMsgID string          `json:"meta_msg_id"`
	From      string          `json:"from"`
	WAID      string          `json:"wa_id"`
	Name      string          `json:"name"`
	Number    string          `json:"number"`
	Body      string          `json:"body"`
	Media     json.RawMessage `json:"media"`
	Timestamp json.RawMessage `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Contact  *contact  `json:"contact"`
	Contacts []contact `json:"contacts"`
	Profile  *profile  `json:"profile"`
}

type statusEntry struct {
	ID        string          `json:"id"`
	MetaMsgID string          `json:"meta_msg_id"`
	Status    string          `json:"status"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Classify turns one raw payload of unknown shape into a tagged result.
// It is pure: no I/O, no side effects; "now" is injected for defaulting
// absent timestamps.
func Classify(raw []byte, now time.Time) Result {
	var payload envelope
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{Kind: KindUnrecognized, Reason: "payload is not valid JSON"}
	}

	if payload.MetaData != nil {
		if payload.MetaData.Entry == nil {
			return Result{Kind: KindUnrecognized, Reason: "metaData.entry is missing"}
		}
		return classifyEnvelope(payload.MetaData, now)
	}

	// A present messages key classifies as a batch even when the list
	// is empty; only an absent (or null) key falls through.
	if payload.Messages != nil || payload.Type == "message" {
		return classifyFlatMessages(raw, payload.Messages, now)
	}

	if len(payload.Status) > 0 && string(payload.Status) != "null" || payload.Type == "status" {
		return classifyFlatStatus(raw, payload.Status, now)
	}

	return Result{Kind: KindUnrecognized, Reason: "payload matches no recognized shape"}
}

func classifyEnvelope(md *metaData, now time.Time) Result {
	result := Result{Kind: KindMessageBatch}

	for _, block := range md.Entry {
		for _, ch := range block.Changes {
			switch {
			case ch.Field == "messages" && len(ch.Value.Messages) > 0:
				extractBatch(&result, ch.Value, now)
			case ch.Field == "statuses" || len(ch.Value.Statuses) > 0:
				extractStatuses(&result, ch.Value.Statuses, now)
			}
		}
	}

	if len(result.Entries) == 0 && len(result.Statuses) > 0 {
		result.Kind = KindStatusUpdate
	}
	return result
}

func extractBatch(result *Result, value changeValue, now time.Time) {
	waID := ""
	name := ""
	number := ""
	if len(value.Contacts) > 0 {
		waID = value.Contacts[0].WAID
		if value.Contacts[0].Profile != nil {
			name = value.Contacts[0].Profile.Name
		}
	}
	if value.Metadata != nil {
		number = value.Metadata.DisplayPhoneNumber
	}

	for i, raw := range value.Messages {
		entry, err := extractEntry(raw, waID, name, number, now)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("messages[%d]: %v", i, err))
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
}

func extractStatuses(result *Result, statuses []json.RawMessage, now time.Time) {
	for i, raw := range statuses {
		command, err := extractStatusCommand(raw, now)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("statuses[%d]: %v", i, err))
			continue
		}
		result.Statuses = append(result.Statuses, command)
	}
}

func classifyFlatMessages(raw []byte, messages []json.RawMessage, now time.Time) Result {
	result := Result{Kind: KindMessageBatch}

	if messages == nil {
		// {type:"message", ...} with the entry fields at the top level
		messages = []json.RawMessage{json.RawMessage(raw)}
	}
	for i, rawEntry := range messages {
		entry, err := extractEntry(rawEntry, "", "", "", now)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("messages[%d]: %v", i, err))
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

func classifyFlatStatus(raw []byte, status json.RawMessage, now time.Time) Result {
	result := Result{Kind: KindStatusUpdate}

	target := status
	if len(target) == 0 || string(target) == "null" {
		// {type:"status", ...} with the fields at the top level
		target = json.RawMessage(raw)
	}
	command, err := extractStatusCommand(target, now)
	if err != nil {
		result.Skipped = append(result.Skipped, fmt.Sprintf("status: %v", err))
		return result
	}
	result.Statuses = append(result.Statuses, command)
	return result
}

func extractEntry(raw json.RawMessage, waID, name, number string, now time.Time) (Entry, error) {
	var m messageEntry
	if err := json.Unmarshal(raw, &m); err != nil {
		return Entry{}, fmt.Errorf("not an object: %w", err)
	}

	ts, err := parseTimestamp(m.Timestamp, now)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ProviderID: optional(firstNonEmpty(m.ID, m.MessageID)),
		MetaID:     optional(m.MetaMsgID),
		WAID:       firstNonEmpty(waID, extractWaID(&m)),
		Name:       firstNonEmpty(name, extractName(&m)),
		Number:     firstNonEmpty(number, m.Number),
		Text:       extractText(&m),
		Media:      m.Media,
		Timestamp:  ts,
		Raw:        raw,
	}
	if entry.WAID == "" {
		entry.WAID = model.WAIDUnknown
	}
	if entry.Name == "" {
		entry.Name = model.WAIDUnknown
	}
	if len(entry.Media) > 0 && string(entry.Media) == "null" {
		entry.Media = nil
	}
	return entry, nil
}

func extractStatusCommand(raw json.RawMessage, now time.Time) (StatusCommand, error) {
	var st statusEntry
	if err := json.Unmarshal(raw, &st); err != nil {
		return StatusCommand{}, fmt.Errorf("not an object: %w", err)
	}

	status := model.Status(strings.ToLower(st.Status))
	switch status {
	case model.StatusCreated, model.StatusSent, model.StatusDelivered, model.StatusRead, model.StatusFailed:
	default:
		return StatusCommand{}, fmt.Errorf("unknown status %q", st.Status)
	}

	ts, err := parseTimestamp(st.Timestamp, now)
	if err != nil {
		return StatusCommand{}, err
	}

	return StatusCommand{
		ProviderID: optional(st.ID),
		MetaID:     optional(st.MetaMsgID),
		Status:     status,
		Timestamp:  ts,
		Raw:        raw,
	}, nil
}

// wa_id precedence: contacts[0].wa_id, then from, then wa_id, then
// contact.wa_id, then profile.wa_id. The caller falls back to the
// sentinel when everything is absent.
func extractWaID(m *messageEntry) string {
	if len(m.Contacts) > 0 && m.Contacts[0].WAID != "" {
		return m.Contacts[0].WAID
	}
	if m.From != "" {
		return m.From
	}
	if m.WAID != "" {
		return m.WAID
	}
	if m.Contact != nil && m.Contact.WAID != "" {
		return m.Contact.WAID
	}
	if m.Profile != nil && m.Profile.WAID != "" {
		return m.Profile.WAID
	}
	return ""
}

func extractName(m *messageEntry) string {
	if m.Name != "" {
		return m.Name
	}
	if m.Profile != nil && m.Profile.Name != "" {
		return m.Profile.Name
	}
	if len(m.Contacts) > 0 && m.Contacts[0].Profile != nil {
		return m.Contacts[0].Profile.Name
	}
	return ""
}

func extractText(m *messageEntry) string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	return m.Body
}

// Timestamps arrive as provider epoch seconds, either a JSON string or a
// bare number. Absent means "now"; malformed fails this entry only.
func parseTimestamp(raw json.RawMessage, now time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return now, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		seconds, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed timestamp %q", asString)
		}
		return time.Unix(seconds, 0).UTC(), nil
	}

	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return time.Unix(asNumber, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("malformed timestamp %s", string(raw))
}

// SenderID probes an arbitrary payload for a conversation identifier
// using the standard precedence, falling back to the sentinel. Used by
// the bulk importer for payloads that match no recognized shape.
func SenderID(raw []byte) string {
	var m messageEntry
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.WAIDUnknown
	}
	if id := extractWaID(&m); id != "" {
		return id
	}
	return model.WAIDUnknown
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
