package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatmirror/chatmirror/internal/model"
)

func TestClassify(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("provider envelope with one message", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"messages","value":{
			"contacts":[{"wa_id":"91900000001","profile":{"name":"Asha"}}],
			"metadata":{"display_phone_number":"918000000000"},
			"messages":[{"id":"wamid.1","text":{"body":"hi"},"timestamp":"1700000000"}]
		}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindMessageBatch, result.Kind)
		assert.Len(result.Entries, 1)
		assert.Empty(result.Skipped)

		entry := result.Entries[0]
		assert.Equal("91900000001", entry.WAID)
		assert.Equal("Asha", entry.Name)
		assert.Equal("918000000000", entry.Number)
		assert.Equal("hi", entry.Text)
		if assert.NotNil(entry.ProviderID) {
			assert.Equal("wamid.1", *entry.ProviderID)
		}
		assert.True(entry.Timestamp.Equal(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)))
	})

	t.Run("envelope with multiple messages", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"messages","value":{
			"contacts":[{"wa_id":"91900000002"}],
			"messages":[
				{"id":"wamid.a","text":{"body":"one"},"timestamp":"1700000000"},
				{"id":"wamid.b","text":{"body":"two"},"timestamp":"1700000005"}
			]
		}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindMessageBatch, result.Kind)
		assert.Len(result.Entries, 2)
		assert.Equal("one", result.Entries[0].Text)
		assert.Equal("two", result.Entries[1].Text)
		// no profile supplied, sender name falls back to the sentinel
		assert.Equal(model.WAIDUnknown, result.Entries[0].Name)
	})

	t.Run("malformed timestamp skips that entry only", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"messages","value":{
			"contacts":[{"wa_id":"91900000003"}],
			"messages":[
				{"id":"wamid.bad","text":{"body":"bad"},"timestamp":"not-a-number"},
				{"id":"wamid.good","text":{"body":"good"},"timestamp":"1700000000"}
			]
		}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindMessageBatch, result.Kind)
		assert.Len(result.Entries, 1)
		assert.Equal("good", result.Entries[0].Text)
		assert.Len(result.Skipped, 1)
		assert.Contains(result.Skipped[0], "timestamp")
	})

	t.Run("absent timestamp defaults to now", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"messages","value":{
			"contacts":[{"wa_id":"91900000004"}],
			"messages":[{"id":"wamid.x","text":{"body":"hey"}}]
		}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Len(result.Entries, 1)
		assert.True(result.Entries[0].Timestamp.Equal(now))
	})

	t.Run("statuses change yields status commands", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"statuses","value":{
			"statuses":[{"id":"wamid.1","status":"read","timestamp":"1700000100"}]
		}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindStatusUpdate, result.Kind)
		assert.Len(result.Statuses, 1)

		command := result.Statuses[0]
		assert.Equal(model.StatusRead, command.Status)
		if assert.NotNil(command.ProviderID) {
			assert.Equal("wamid.1", *command.ProviderID)
		}
		assert.Nil(command.MetaID)
	})

	t.Run("unknown status value is skipped", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"statuses","value":{
			"statuses":[{"id":"wamid.1","status":"teleported"}]
		}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Empty(result.Statuses)
		assert.Len(result.Skipped, 1)
	})

	t.Run("valid envelope with no effects is an empty batch", func(t *testing.T) {
		payload := `{"metaData":{"entry":[{"changes":[{"field":"other","value":{}}]}]}}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindMessageBatch, result.Kind)
		assert.Empty(result.Entries)
		assert.Empty(result.Statuses)
	})

	t.Run("missing metaData.entry is unrecognized", func(t *testing.T) {
		result := Classify([]byte(`{"metaData":{}}`), now)
		assert.Equal(KindUnrecognized, result.Kind)
		assert.NotEmpty(result.Reason)
	})

	t.Run("arbitrary payload is unrecognized", func(t *testing.T) {
		result := Classify([]byte(`{"hello":"world"}`), now)
		assert.Equal(KindUnrecognized, result.Kind)
	})

	t.Run("invalid json is unrecognized", func(t *testing.T) {
		result := Classify([]byte(`{nope`), now)
		assert.Equal(KindUnrecognized, result.Kind)
	})

	t.Run("flat message list", func(t *testing.T) {
		payload := `{"messages":[{"id":"m1","from":"91911111111","body":"flat","timestamp":1700000000}]}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindMessageBatch, result.Kind)
		assert.Len(result.Entries, 1)
		assert.Equal("91911111111", result.Entries[0].WAID)
		assert.Equal("flat", result.Entries[0].Text)
	})

	t.Run("flat empty message list is a zero-entry batch", func(t *testing.T) {
		result := Classify([]byte(`{"messages":[]}`), now)
		assert.Equal(KindMessageBatch, result.Kind)
		assert.Empty(result.Entries)
		assert.Empty(result.Skipped)
	})

	t.Run("null messages key is unrecognized", func(t *testing.T) {
		result := Classify([]byte(`{"messages":null}`), now)
		assert.Equal(KindUnrecognized, result.Kind)
	})

	t.Run("flat status object", func(t *testing.T) {
		payload := `{"status":{"meta_msg_id":"meta.1","status":"delivered","timestamp":"1700000050"}}`

		result := Classify([]byte(payload), now)
		assert.Equal(KindStatusUpdate, result.Kind)
		assert.Len(result.Statuses, 1)
		if assert.NotNil(result.Statuses[0].MetaID) {
			assert.Equal("meta.1", *result.Statuses[0].MetaID)
		}
		assert.Nil(result.Statuses[0].ProviderID)
	})
}

func TestExtractWaIDPrecedence(t *testing.T) {
	assert := assert.New(t)
	now := time.Now().UTC()

	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"contacts wins", `{"messages":[{"contacts":[{"wa_id":"A"}],"from":"B","wa_id":"C"}]}`, "A"},
		{"then from", `{"messages":[{"from":"B","wa_id":"C"}]}`, "B"},
		{"then wa_id", `{"messages":[{"wa_id":"C","contact":{"wa_id":"D"}}]}`, "C"},
		{"then contact", `{"messages":[{"contact":{"wa_id":"D"},"profile":{"wa_id":"E"}}]}`, "D"},
		{"then profile", `{"messages":[{"profile":{"wa_id":"E"}}]}`, "E"},
		{"sentinel", `{"messages":[{"body":"anon"}]}`, model.WAIDUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Classify([]byte(tc.payload), now)
			if assert.Len(result.Entries, 1) {
				assert.Equal(tc.want, result.Entries[0].WAID)
			}
		})
	}
}

func TestSenderID(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("919999", SenderID([]byte(`{"from":"919999"}`)))
	assert.Equal(model.WAIDUnknown, SenderID([]byte(`{"foo":"bar"}`)))
	assert.Equal(model.WAIDUnknown, SenderID([]byte(`not json`)))
}
