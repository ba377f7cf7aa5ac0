package model

import (
	"errors"
	"fmt"
)

// DrawingEvent 화이트보드 드로잉 이벤트
type DrawingEvent struct {
	Type      DrawingEventType `json:"type"`
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId"`
	Timestamp int64            `json:"timestamp"`
	Data      *StrokeData      `json:"data,omitempty"`
}

// StrokeData 스트로크 데이터
type StrokeData struct {
	Points []Point     `json:"points"`
	Tool   DrawingTool `json:"tool"`
	Color  string      `json:"color"`
	Width  float64     `json:"width"`
}

// Point 캔버스 좌표
type Point struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
}

// DrawingTool 도구 설정
type DrawingTool struct {
	Type      ToolType     `json:"type"`
	ShapeType ShapeType    `json:"shapeType,omitempty"`
	Options   *ToolOptions `json:"options,omitempty"`
}

// ToolOptions 도구 옵션
type ToolOptions struct {
	Opacity   float64 `json:"opacity"`
	Smoothing float64 `json:"smoothing"`
}

var errInvalidDrawing = errors.New("invalid drawing event")

// Validate checks the event shape. It does not check membership or session state.
func (e *DrawingEvent) Validate() error {
	switch e.Type {
	case DrawingStroke:
		if e.Data == nil {
			return fmt.Errorf("%w: stroke without data", errInvalidDrawing)
		}
		if len(e.Data.Points) == 0 {
			return fmt.Errorf("%w: stroke without points", errInvalidDrawing)
		}
		if e.Data.Width <= 0 {
			return fmt.Errorf("%w: width must be positive", errInvalidDrawing)
		}
		return e.Data.Tool.validate()
	case DrawingClear, DrawingUndo, DrawingRedo:
		if e.Data != nil {
			return fmt.Errorf("%w: %s carries data", errInvalidDrawing, e.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalidDrawing, e.Type)
	}
}

func (t DrawingTool) validate() error {
	switch t.Type {
	case ToolPen, ToolBrush, ToolEraser:
		return nil
	case ToolShape:
		switch t.ShapeType {
		case "", ShapeRectangle, ShapeCircle, ShapeLine, ShapeArrow:
			return nil
		}
		return fmt.Errorf("%w: unknown shape %q", errInvalidDrawing, t.ShapeType)
	default:
		return fmt.Errorf("%w: unknown tool %q", errInvalidDrawing, t.Type)
	}
}
