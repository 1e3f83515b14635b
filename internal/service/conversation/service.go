package conversation

import (
	"context"
	"fmt"
	"sort"

	"github.com/chatmirror/chatmirror/internal/model"
)

// Store is the read-side slice of the message store this service needs.
type Store interface {
	ListConversationHeads(ctx context.Context) ([]model.Message, error)
	FindByConversation(ctx context.Context, waID string) ([]model.Message, error)
}

// service derives conversation views from the message store. It holds
// no state and never mutates records.
type service struct {
	store Store
}

func New(store Store) *service {
	return &service{store: store}
}

// ListSummaries returns one summary per distinct wa_id, most recent
// conversation first. Equal lastAt values order by wa_id so results are
// deterministic.
func (s *service) ListSummaries(ctx context.Context) ([]model.ConversationSummary, error) {
	heads, err := s.store.ListConversationHeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversation heads: %w", err)
	}

	summaries := make([]model.ConversationSummary, 0, len(heads))
	for _, head := range heads {
		summaries = append(summaries, model.ConversationSummary{
			WAID:        head.WAID,
			LastMessage: head.Text,
			LastAt:      head.CreatedAt,
			Name:        head.Name,
			Number:      head.Number,
			LastStatus:  head.Status,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].LastAt.Equal(summaries[j].LastAt) {
			return summaries[i].LastAt.After(summaries[j].LastAt)
		}
		return summaries[i].WAID < summaries[j].WAID
	})

	return summaries, nil
}

// Transcript returns every record for one conversation ascending by
// createdAt, insertion order breaking ties.
func (s *service) Transcript(ctx context.Context, waID string) ([]model.Message, error) {
	messages, err := s.store.FindByConversation(ctx, waID)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript: %w", err)
	}
	return messages, nil
}
