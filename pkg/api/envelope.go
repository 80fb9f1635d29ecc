package api

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/handsync/internal/models"
)

// MessageType тип сообщения realtime канала
type MessageType string

const (
	MessageSync         MessageType = "sync"
	MessageHeartbeat    MessageType = "heartbeat"
	MessageDeviceStatus MessageType = "device_status"
	MessageConflict     MessageType = "conflict"
	MessageBroadcast    MessageType = "broadcast"
)

// Envelope представляет одно сообщение realtime канала.
// Пустой ToDevice означает рассылку всем остальным устройствам пользователя.
type Envelope struct {
	ID         string          `json:"id"`                 // ID уникальный идентификатор сообщения
	Type       MessageType     `json:"type"`               // Type тип сообщения
	FromDevice string          `json:"fromDevice"`         // FromDevice устройство-отправитель
	ToDevice   string          `json:"toDevice,omitempty"` // ToDevice устройство-получатель
	Data       json.RawMessage `json:"data,omitempty"`     // Data содержимое, зависит от Type
	Timestamp  int64           `json:"timestamp"`          // Timestamp unix ms отправки
	Priority   int             `json:"priority"`           // Priority приоритет устройства-отправителя
}

// SyncData содержимое сообщения sync
type SyncData struct {
	Changes []*models.ChangeRecord `json:"changes"`
}

// HeartbeatData содержимое сообщения heartbeat.
// Ответ relay на heartbeat содержит ReplyTo с ID исходного сообщения.
type HeartbeatData struct {
	ReplyTo        string `json:"replyTo,omitempty"`
	PendingChanges int    `json:"pendingChanges"`
	Online         bool   `json:"online"`
}

// NewEnvelope creates an envelope with a fresh id and data encoded as JSON.
func NewEnvelope(msgType MessageType, from, to string, priority int, timestamp int64, data any) (*Envelope, error) {
	env := &Envelope{
		ID:         uuid.New().String(),
		Type:       msgType,
		FromDevice: from,
		ToDevice:   to,
		Timestamp:  timestamp,
		Priority:   priority,
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", msgType, err)
		}
		env.Data = raw
	}

	return env, nil
}

// DecodeData decodes Data into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s message %s has no data", e.Type, e.ID)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// Validate checks the fields every envelope must carry.
func (e *Envelope) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("envelope without id")
	case e.FromDevice == "":
		return fmt.Errorf("envelope %s without sender", e.ID)
	}

	switch e.Type {
	case MessageSync, MessageHeartbeat, MessageDeviceStatus, MessageConflict, MessageBroadcast:
		return nil
	}
	return fmt.Errorf("envelope %s has unknown type %q", e.ID, e.Type)
}
