package model

// MessageType 브로드캐스트 메시지 타입
type MessageType string

const (
	MessageSessionStart      MessageType = "session_start"
	MessageSessionEnd        MessageType = "session_end"
	MessageParticipantJoin   MessageType = "participant_join"
	MessageParticipantLeave  MessageType = "participant_leave"
	MessageParticipantUpdate MessageType = "participant_update"
	MessageDrawingEvent      MessageType = "drawing_event"
)

func (m MessageType) String() string {
	return string(m)
}

// DrawingEventType 드로잉 이벤트 타입
type DrawingEventType string

const (
	DrawingStroke DrawingEventType = "stroke"
	DrawingClear  DrawingEventType = "clear"
	DrawingUndo   DrawingEventType = "undo"
	DrawingRedo   DrawingEventType = "redo"
)

func (d DrawingEventType) String() string {
	return string(d)
}

// ToolType 드로잉 도구 타입
type ToolType string

const (
	ToolPen    ToolType = "pen"
	ToolBrush  ToolType = "brush"
	ToolEraser ToolType = "eraser"
	ToolShape  ToolType = "shape"
)

// ShapeType 도형 타입 (ToolShape 전용)
type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
	ShapeLine      ShapeType = "line"
	ShapeArrow     ShapeType = "arrow"
)

// SystemSenderID is the sender of messages not caused by a participant.
const SystemSenderID = "system"

// ChannelName is the broadcast topic of a session.
func ChannelName(sessionID string) string {
	return "collab_" + sessionID
}

// RoomName is the media room of a session. Shares the prefix with
// ChannelName but lives in the media server's namespace.
func RoomName(sessionID string) string {
	return "collab_" + sessionID
}
