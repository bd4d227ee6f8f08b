package realtime

// MessageType is the "type" field of a live-update message
type MessageType string

const (
	MessageTypeConnected  MessageType = "connected"
	MessageTypeFullReload MessageType = "full-reload"
	MessageTypeCustom     MessageType = "custom"
	MessageTypePing       MessageType = "ping"
)

// EventFunctionsUpdated is the custom event sent when an artifact changes
const EventFunctionsUpdated = "office-functions-updated"

// ServerMessage is a message sent to live-update clients
type ServerMessage struct {
	Type  MessageType `json:"type"`
	Event string      `json:"event,omitempty"`
	Data  *UpdateData `json:"data,omitempty"`
}

// UpdateData names the artifact that changed
type UpdateData struct {
	File string `json:"file"`
}

// ConnectedMessage greets a new client
func ConnectedMessage() ServerMessage {
	return ServerMessage{Type: MessageTypeConnected}
}

// FullReloadMessage asks clients to reload the page
func FullReloadMessage() ServerMessage {
	return ServerMessage{Type: MessageTypeFullReload}
}

// FunctionsUpdatedMessage tells clients which artifact changed
func FunctionsUpdatedMessage(file string) ServerMessage {
	return ServerMessage{
		Type:  MessageTypeCustom,
		Event: EventFunctionsUpdated,
		Data:  &UpdateData{File: file},
	}
}

// PingMessage keeps idle connections open
func PingMessage() ServerMessage {
	return ServerMessage{Type: MessageTypePing}
}
