package sqlstore

import (
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
)

type fieldRecord struct {
	FarmID      string `gorm:"primaryKey"`
	FieldID     string `gorm:"primaryKey"`
	CropType    string
	GrowthStage string
	PlantedDate *time.Time
	Status      string `gorm:"index"`
	UpdatedAt   time.Time
}

func (fieldRecord) TableName() string { return "fields" }

func (r fieldRecord) toDomain() domain.FieldState {
	return domain.FieldState{
		FarmID:      r.FarmID,
		FieldID:     r.FieldID,
		CropType:    domain.CropType(r.CropType),
		GrowthStage: domain.GrowthStage(r.GrowthStage),
		PlantedDate: r.PlantedDate,
		Status:      domain.FieldStatus(r.Status),
	}
}

type recommendationRecord struct {
	ID               string `gorm:"primaryKey"`
	UserID           string
	FarmID           string `gorm:"index"`
	FieldID          string
	CropType         string
	Type             string
	Advice           string
	Reasoning        string
	WeatherTimestamp time.Time
	Metrics          map[string]float64 `gorm:"serializer:json"`
	CreatedAt        time.Time
	ExpiresAt        time.Time `gorm:"index"`
}

func (recommendationRecord) TableName() string { return "recommendations" }

func newRecommendationRecord(rec domain.Recommendation, expires time.Time) recommendationRecord {
	return recommendationRecord{
		ID:               rec.ID,
		UserID:           rec.UserID,
		FarmID:           rec.FarmID,
		FieldID:          rec.FieldID,
		CropType:         string(rec.CropType),
		Type:             string(rec.Type),
		Advice:           rec.Advice,
		Reasoning:        rec.Reasoning,
		WeatherTimestamp: rec.WeatherTimestamp,
		Metrics:          rec.Metrics,
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        expires,
	}
}

func (r recommendationRecord) toDomain() domain.Recommendation {
	return domain.Recommendation{
		ID:               r.ID,
		UserID:           r.UserID,
		FarmID:           r.FarmID,
		FieldID:          r.FieldID,
		CropType:         domain.CropType(r.CropType),
		Type:             domain.RecommendationType(r.Type),
		Advice:           r.Advice,
		Reasoning:        r.Reasoning,
		WeatherTimestamp: r.WeatherTimestamp.UTC(),
		Metrics:          r.Metrics,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

// feedbackRecord is one harvest questionnaire answer.
type feedbackRecord struct {
	ID              uint   `gorm:"primaryKey"`
	FarmID          string `gorm:"index"`
	FieldID         string
	QuestionID      string
	AnswerLabel     string
	AnswerValue     string
	Multiplier      float64
	TargetParameter string
	CreatedAt       time.Time
}

func (feedbackRecord) TableName() string { return "harvest_feedback" }
