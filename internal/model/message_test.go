package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage("tenant-1", "subject", "a@b.example", "c@d.example", "body",
		[]string{"https://x.example", " https://x.example ", "", "https://y.example"},
		nil, PriorityHigh)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, PriorityHigh, msg.Priority)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, msg.URLs)
	assert.False(t, msg.ReceivedAt.IsZero())

	other := NewMessage("tenant-1", "subject", "a@b.example", "c@d.example", "body",
		nil, nil, PriorityNormal)
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestNewMessage_UnknownPriorityNormalized(t *testing.T) {
	msg := NewMessage("tenant-1", "s", "a@b.example", "c@d.example", "b",
		nil, nil, Priority("urgent"))
	assert.Equal(t, PriorityNormal, msg.Priority)
}

func TestMessage_Validate(t *testing.T) {
	valid := func() *Message {
		return NewMessage("tenant-1", "subject", "a@b.example", "c@d.example", "body",
			nil, nil, PriorityNormal)
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("nil message", func(t *testing.T) {
		var msg *Message
		err := msg.Validate()
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "message", vErr.Field)
	})

	tests := []struct {
		name   string
		mutate func(*Message)
		field  string
	}{
		{"missing id", func(m *Message) { m.ID = "" }, "id"},
		{"missing tenant", func(m *Message) { m.TenantID = "" }, "tenant_id"},
		{"blank sender", func(m *Message) { m.Sender = "   " }, "sender"},
		{"empty subject and body", func(m *Message) { m.Subject = ""; m.Body = "" }, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid()
			tt.mutate(msg)
			err := msg.Validate()
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestMessage_SubjectOnlyIsValid(t *testing.T) {
	msg := NewMessage("tenant-1", "subject only", "a@b.example", "c@d.example", "",
		nil, nil, PriorityNormal)
	assert.NoError(t, msg.Validate())
}
