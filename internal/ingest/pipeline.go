package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/chatmirror/chatmirror/internal/model"
)

const (
	EventMessageNew    = "message:new"
	EventMessageStatus = "message:status"
)

// Store is the persistence capability the pipeline needs. Satisfied by
// store.MessageStore.
type Store interface {
	Insert(ctx context.Context, message *model.Message) error
	FindMatchingAny(ctx context.Context, providerID, metaID *string) ([]model.Message, error)
	UpdateStatus(ctx context.Context, ids []string, status model.Status, rawPayload json.RawMessage, ts time.Time) ([]model.Message, error)
}

// Notifier publishes realtime events after a successful persistence
// step. Publish is fire-and-forget: it has no error return and must
// never block persistence outcomes.
type Notifier interface {
	Publish(event string, payload interface{})
}

// NopNotifier drops every event. Used by the bulk importer and tests.
type NopNotifier struct{}

func (NopNotifier) Publish(string, interface{}) {}

type Outcome struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Pipeline orchestrates classification, idempotent persistence and
// event publication for one raw payload at a time. Persistence is the
// durability boundary; notification is best-effort.
type Pipeline struct {
	store    Store
	notifier Notifier
}

func New(store Store, notifier Notifier) *Pipeline {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Pipeline{store: store, notifier: notifier}
}

// Ingest runs one raw webhook payload through the pipeline. A rejected
// (unrecognized) payload returns *model.UnrecognizedPayloadError and
// leaves the store untouched. Per-entry persistence failures are logged
// and do not abort sibling entries.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte) (Outcome, error) {
	result := Classify(raw, time.Now().UTC())
	for _, diag := range result.Skipped {
		log.Warnf("ingest: skipping entry: %s", diag)
	}

	if result.Kind == KindUnrecognized {
		return Outcome{}, &model.UnrecognizedPayloadError{Reason: result.Reason}
	}

	outcome := Outcome{}

	for _, entry := range result.Entries {
		message := recordFromEntry(entry)
		if err := p.store.Insert(ctx, message); err != nil {
			log.Errorf("ingest: inserting message for %s: %v", entry.WAID, err)
			continue
		}
		outcome.Inserted++
		p.notifier.Publish(EventMessageNew, message)
	}

	for _, command := range result.Statuses {
		updated, err := p.applyStatus(ctx, command)
		if err != nil {
			return outcome, err
		}
		outcome.Updated += updated
	}

	return outcome, nil
}

// Send synthesizes an outbound record from the manual-send form,
// persists it and publishes it. wa_id and text are required.
func (p *Pipeline) Send(ctx context.Context, params model.SendMessageParams) (*model.Message, error) {
	if params.WAID == "" || params.Text == "" {
		return nil, fmt.Errorf("%w: wa_id and text are required", model.ErrorValidation)
	}

	now := time.Now().UTC()
	message := &model.Message{
		WAID:       params.WAID,
		Name:       params.Name,
		Number:     params.Number,
		Text:       params.Text,
		Status:     model.StatusSent,
		RawPayload: json.RawMessage(`{"origin":"manual-send"}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.store.Insert(ctx, message); err != nil {
		return nil, fmt.Errorf("persisting manual send: %w", err)
	}

	p.notifier.Publish(EventMessageNew, message)
	return message, nil
}

// applyStatus matches existing records by either provider identifier
// and overwrites their status. A command with no identifiers resolves
// to an empty match set, which is a no-op success.
func (p *Pipeline) applyStatus(ctx context.Context, command StatusCommand) (int, error) {
	matches, err := p.store.FindMatchingAny(ctx, command.ProviderID, command.MetaID)
	if err != nil {
		return 0, fmt.Errorf("matching status targets: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}

	updated, err := p.store.UpdateStatus(ctx, ids, command.Status, command.Raw, command.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("applying status update: %w", err)
	}

	p.notifier.Publish(EventMessageStatus, updated)
	return len(updated), nil
}

// Webhook entries always ingest as "sent": the provider only calls back
// for messages that exist on its network.
func recordFromEntry(entry Entry) *model.Message {
	return &model.Message{
		ProviderID:     entry.ProviderID,
		ProviderMetaID: entry.MetaID,
		WAID:           entry.WAID,
		Name:           entry.Name,
		Number:         entry.Number,
		Text:           entry.Text,
		Media:          entry.Media,
		Status:         model.StatusSent,
		RawPayload:     entry.Raw,
		CreatedAt:      entry.Timestamp,
		UpdatedAt:      entry.Timestamp,
	}
}
