package model

import (
	"encoding/json"
	"fmt"
)

// Payload is the body of a Message. Implemented only by the types in this file
// and *DrawingEvent. On the wire the variants carry the bare Session or
// Participant, not a wrapping object.
type Payload interface {
	messageType() MessageType
}

type SessionStarted struct {
	Session Session
}

type SessionEnded struct {
	Session Session
}

type ParticipantJoined struct {
	Participant Participant
}

type ParticipantLeft struct {
	Participant Participant
}

type ParticipantUpdated struct {
	Participant Participant
}

func (SessionStarted) messageType() MessageType     { return MessageSessionStart }
func (SessionEnded) messageType() MessageType       { return MessageSessionEnd }
func (ParticipantJoined) messageType() MessageType  { return MessageParticipantJoin }
func (ParticipantLeft) messageType() MessageType    { return MessageParticipantLeave }
func (ParticipantUpdated) messageType() MessageType { return MessageParticipantUpdate }
func (*DrawingEvent) messageType() MessageType      { return MessageDrawingEvent }

// Message 세션 채널로 전달되는 메시지
type Message struct {
	Type      MessageType
	SessionID string
	SenderID  string
	Timestamp int64
	Payload   Payload
}

// NewMessage builds a message whose Type matches the payload.
func NewMessage(sessionID, senderID string, timestamp int64, payload Payload) Message {
	return Message{
		Type:      payload.messageType(),
		SessionID: sessionID,
		SenderID:  senderID,
		Timestamp: timestamp,
		Payload:   payload,
	}
}

type messageJSON struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// wireBody returns the value encoded as the "payload" field.
func wireBody(p Payload) any {
	switch v := p.(type) {
	case SessionStarted:
		return v.Session
	case SessionEnded:
		return v.Session
	case ParticipantJoined:
		return v.Participant
	case ParticipantLeft:
		return v.Participant
	case ParticipantUpdated:
		return v.Participant
	default:
		return p
	}
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("message %s: nil payload", m.Type)
	}
	raw, err := json.Marshal(wireBody(m.Payload))
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		Type:      m.Payload.messageType(),
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
		Payload:   raw,
	})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var wire messageJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	var (
		payload Payload
		err     error
	)
	switch wire.Type {
	case MessageSessionStart, MessageSessionEnd:
		var s Session
		if err = json.Unmarshal(wire.Payload, &s); err == nil {
			if wire.Type == MessageSessionStart {
				payload = SessionStarted{Session: s}
			} else {
				payload = SessionEnded{Session: s}
			}
		}
	case MessageParticipantJoin, MessageParticipantLeave, MessageParticipantUpdate:
		var p Participant
		if err = json.Unmarshal(wire.Payload, &p); err == nil {
			switch wire.Type {
			case MessageParticipantJoin:
				payload = ParticipantJoined{Participant: p}
			case MessageParticipantLeave:
				payload = ParticipantLeft{Participant: p}
			default:
				payload = ParticipantUpdated{Participant: p}
			}
		}
	case MessageDrawingEvent:
		ev := &DrawingEvent{}
		err = json.Unmarshal(wire.Payload, ev)
		payload = ev
	default:
		return fmt.Errorf("unknown message type %q", wire.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", wire.Type, err)
	}

	m.Type = wire.Type
	m.Payload = payload
	m.SessionID = wire.SessionID
	m.SenderID = wire.SenderID
	m.Timestamp = wire.Timestamp
	return nil
}
