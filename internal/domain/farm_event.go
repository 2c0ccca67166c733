package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Farm lifecycle event names.
const (
	EventFieldPlanted   = "field.planted"
	EventFieldHarvested = "field.harvested"
)

// FeedbackAnswer is one answer from a post-harvest questionnaire. Its
// multiplier feeds the farm's feedback factor for TargetParameter.
type FeedbackAnswer struct {
	QuestionID      string  `json:"questionId"`
	AnswerLabel     string  `json:"answerLabel"`
	AnswerValue     string  `json:"answerValue"`
	Multiplier      float64 `json:"multiplier"`
	TargetParameter string  `json:"targetParameter"`
}

// FarmEvent is a field lifecycle change published by the farm service.
type FarmEvent struct {
	Event       string           `json:"event"`
	FarmID      string           `json:"farmId"`
	FieldID     string           `json:"fieldId"`
	CropType    string           `json:"cropType,omitempty"`
	PlantedDate string           `json:"plantedDate,omitempty"`
	Answers     []FeedbackAnswer `json:"answers,omitempty"`
}

// ParseFarmEvent decodes and validates a farm lifecycle event.
func ParseFarmEvent(raw RawEvent) (FarmEvent, error) {
	var ev FarmEvent
	if err := json.Unmarshal(raw.Value, &ev); err != nil {
		return FarmEvent{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if ev.FarmID == "" || ev.FieldID == "" {
		return FarmEvent{}, fmt.Errorf("%w: event %q missing farmId or fieldId", ErrMalformedMessage, ev.Event)
	}
	switch ev.Event {
	case EventFieldPlanted, EventFieldHarvested:
		return ev, nil
	default:
		return FarmEvent{}, fmt.Errorf("%w: unsupported event %q", ErrMalformedMessage, ev.Event)
	}
}

// PlantedOn returns the planting date, falling back to the given time when
// the event carries none or it cannot be parsed.
func (e FarmEvent) PlantedOn(fallback time.Time) time.Time {
	if t := parseForecastTime(e.PlantedDate); !t.IsZero() {
		return t
	}
	return fallback
}
