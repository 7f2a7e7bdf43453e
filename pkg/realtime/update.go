// Package realtime fans seat-count changes out to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventCourseUpdate is the event name carried in every frame.
const EventCourseUpdate = "courseUpdate"

// CourseUpdate describes the current seat count of a course.
// Reset marks counts that may legitimately go down (promotion, deletions, edits).
type CourseUpdate struct {
	CourseID      string `json:"course_id"`
	EnrolledCount int    `json:"enrolled_count"`
	Capacity      int    `json:"capacity"`
	Reset         bool   `json:"reset,omitempty"`
}

// Frame is the wire format sent to websocket clients.
type Frame struct {
	Event string       `json:"event"`
	Data  CourseUpdate `json:"data"`
}

// Publisher accepts course updates for fan-out.
type Publisher interface {
	Publish(ctx context.Context, update CourseUpdate) error
}

func encodeFrame(update CourseUpdate) ([]byte, error) {
	return json.Marshal(Frame{Event: EventCourseUpdate, Data: update})
}

func decodeUpdate(payload []byte) (CourseUpdate, error) {
	var update CourseUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return CourseUpdate{}, fmt.Errorf("decode course update: %w", err)
	}
	if update.CourseID == "" {
		return CourseUpdate{}, fmt.Errorf("decode course update: missing course id")
	}
	return update, nil
}
