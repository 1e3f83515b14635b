package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatmirror/chatmirror/internal/model"
)

// MessageStore owns every canonical message record. Records are keyed by
// an internal id assigned on insert; provider_id and provider_meta_id are
// secondary lookups used for status-update matching.
type MessageStore struct {
	db *sqlx.DB
}

func New(dsn string) (*MessageStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", model.ErrorStorageUnavailable, err)
	}

	store := &MessageStore{db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return store, nil
}

func (s *MessageStore) Close() error {
	return s.db.Close()
}

func (s *MessageStore) createTables() error {
	_, err := s.db.Exec(`create table if not exists messages(
		seq              integer primary key autoincrement,
		id               text not null unique,
		provider_id      text null,
		provider_meta_id text null,
		wa_id            text not null,
		name             text not null default '',
		number           text not null default '',
		text             text not null default '',
		media            text null,
		status           text not null default 'created',
		raw_payload      text null,
		created_at       datetime not null,
		updated_at       datetime not null
	)`)
	if err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}

	for _, ddl := range []string{
		`create index if not exists idx_messages_wa_id on messages(wa_id, created_at)`,
		`create index if not exists idx_messages_provider_id on messages(provider_id)`,
		`create index if not exists idx_messages_provider_meta_id on messages(provider_meta_id)`,
	} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}

// Insert assigns the internal id and persists the record. The wa_id is
// required; callers mapping unknown senders must use model.WAIDUnknown,
// never an empty string.
func (s *MessageStore) Insert(ctx context.Context, message *model.Message) error {
	if message.WAID == "" {
		return fmt.Errorf("%w: wa_id is required", model.ErrorValidation)
	}

	if message.ID == "" {
		message.ID = model.CreateID()
	}
	if message.Status == "" {
		message.Status = model.StatusCreated
	}
	now := time.Now().UTC()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	message.CreatedAt = message.CreatedAt.UTC()
	if message.UpdatedAt.IsZero() {
		message.UpdatedAt = now
	}
	message.UpdatedAt = message.UpdatedAt.UTC()

	res, err := s.db.NamedExecContext(ctx, `insert into messages
		(id, provider_id, provider_meta_id, wa_id, name, number, text, media, status, raw_payload, created_at, updated_at)
		values(:id, :provider_id, :provider_meta_id, :wa_id, :name, :number, :text, :media, :status, :raw_payload, :created_at, :updated_at)`,
		message)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting insert sequence: %w", err)
	}
	message.Seq = seq

	return nil
}

// FindByConversation returns every record for one wa_id ascending by
// createdAt, insertion order breaking ties.
func (s *MessageStore) FindByConversation(ctx context.Context, waID string) ([]model.Message, error) {
	messages := []model.Message{}
	err := s.db.SelectContext(ctx, &messages,
		`select * from messages where wa_id = ? order by created_at asc, seq asc`, waID)
	if err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", waID, err)
	}
	return messages, nil
}

// FindMatchingAny returns the records whose provider_id equals the
// supplied provider id or whose provider_meta_id equals the supplied
// meta id. With neither identifier supplied it matches nothing.
func (s *MessageStore) FindMatchingAny(ctx context.Context, providerID, metaID *string) ([]model.Message, error) {
	clauses := ""
	args := []interface{}{}
	if providerID != nil && *providerID != "" {
		clauses = `provider_id = ?`
		args = append(args, *providerID)
	}
	if metaID != nil && *metaID != "" {
		if clauses != "" {
			clauses += ` or `
		}
		clauses += `provider_meta_id = ?`
		args = append(args, *metaID)
	}
	if clauses == "" {
		return []model.Message{}, nil
	}

	messages := []model.Message{}
	err := s.db.SelectContext(ctx, &messages,
		`select * from messages where `+clauses+` order by seq asc`, args...)
	if err != nil {
		return nil, fmt.Errorf("matching provider ids: %w", err)
	}
	return messages, nil
}

// UpdateStatus applies the new status, raw payload and updated_at stamp
// to every listed record and returns them as updated. Empty input is a
// no-op, not an error. created_at is never touched.
func (s *MessageStore) UpdateStatus(ctx context.Context, ids []string, status model.Status, rawPayload json.RawMessage, ts time.Time) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`update messages set status = ?, raw_payload = ?, updated_at = ? where id in (?)`,
		status, rawPayload, ts.UTC(), ids)
	if err != nil {
		return nil, fmt.Errorf("building status update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}

	query, args, err = sqlx.In(`select * from messages where id in (?) order by seq asc`, ids)
	if err != nil {
		return nil, fmt.Errorf("building status reload: %w", err)
	}
	messages := []model.Message{}
	if err := s.db.SelectContext(ctx, &messages, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("reloading updated messages: %w", err)
	}
	return messages, nil
}

// ListConversationHeads returns, per distinct wa_id, the single record
// with the maximum createdAt (latest insertion on true ties), ordered
// most recent first with wa_id breaking ties deterministically.
func (s *MessageStore) ListConversationHeads(ctx context.Context) ([]model.Message, error) {
	messages := []model.Message{}
	err := s.db.SelectContext(ctx, &messages, `
		select seq, id, provider_id, provider_meta_id, wa_id, name, number, text, media, status, raw_payload, created_at, updated_at
		from (
			select *, row_number() over (partition by wa_id order by created_at desc, seq desc) as rn
			from messages
		)
		where rn = 1
		order by created_at desc, wa_id asc`)
	if err != nil {
		return nil, fmt.Errorf("listing conversation heads: %w", err)
	}
	return messages, nil
}
