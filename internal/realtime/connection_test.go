package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSender records the JSON written to a client
type mockSender struct {
	mu       sync.Mutex
	messages []string
	closed   bool
	failErr  error
}

func (m *mockSender) WriteJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.messages = append(m.messages, string(data))
	return nil
}

func (m *mockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSender) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func (m *mockSender) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestConnection_SendMessage(t *testing.T) {
	sender := &mockSender{}
	conn := NewConnection("conn1", sender, "127.0.0.1:5000")

	assert.Equal(t, "conn1", conn.ID)
	assert.Equal(t, "127.0.0.1:5000", conn.RemoteAddr)
	assert.False(t, conn.ConnectedAt.IsZero())

	require.NoError(t, conn.SendMessage(FullReloadMessage()))
	assert.Equal(t, []string{`{"type":"full-reload"}`}, sender.Messages())
}

func TestConnection_SendAfterClose(t *testing.T) {
	sender := &mockSender{}
	conn := NewConnection("conn1", sender, "")

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, sender.IsClosed())

	err := conn.SendMessage(PingMessage())
	assert.ErrorIs(t, err, errConnectionClosed)
	assert.Empty(t, sender.Messages())
}

func TestConnection_SendError(t *testing.T) {
	sender := &mockSender{failErr: errors.New("broken pipe")}
	conn := NewConnection("conn1", sender, "")

	assert.EqualError(t, conn.SendMessage(PingMessage()), "broken pipe")
}

func TestMessages_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		message ServerMessage
		want    string
	}{
		{"connected", ConnectedMessage(), `{"type":"connected"}`},
		{"full reload", FullReloadMessage(), `{"type":"full-reload"}`},
		{"ping", PingMessage(), `{"type":"ping"}`},
		{
			"functions updated",
			FunctionsUpdatedMessage("functions.json"),
			`{"type":"custom","event":"office-functions-updated","data":{"file":"functions.json"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.message)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
