// Package sqlstore persists field state, recommendation history, and harvest
// feedback in SQLite through gorm.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// HistoryRetention is how long a stored recommendation is kept.
const HistoryRetention = 7 * 24 * time.Hour

// Store is a gorm-backed SQLite store.
type Store struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&fieldRecord{}, &recommendationRecord{}, &feedbackRecord{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Store{db: db, clock: clock}, nil
}

// CheckReadiness pings the underlying database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertPlanted records a newly planted field at SEEDLING, replacing any
// previous state for the same farm and field.
func (s *Store) UpsertPlanted(ctx context.Context, farmID, fieldID string, crop domain.CropType, planted time.Time) error {
	planted = planted.UTC()
	rec := fieldRecord{
		FarmID:      farmID,
		FieldID:     fieldID,
		CropType:    string(crop),
		GrowthStage: string(domain.StageSeedling),
		PlantedDate: &planted,
		Status:      string(domain.FieldPlanted),
		UpdatedAt:   s.clock.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "farm_id"}, {Name: "field_id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert field %s/%s: %w", farmID, fieldID, err)
	}
	return nil
}

// ListPlanted returns every field currently in PLANTED status.
func (s *Store) ListPlanted(ctx context.Context) ([]domain.FieldState, error) {
	var rows []fieldRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(domain.FieldPlanted)).
		Order("farm_id, field_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list planted fields: %w", err)
	}
	return toFieldStates(rows), nil
}

// FieldsForFarm returns the farm's fields that carry a crop.
func (s *Store) FieldsForFarm(ctx context.Context, farmID string) ([]domain.FieldState, error) {
	var rows []fieldRecord
	err := s.db.WithContext(ctx).
		Where("farm_id = ? AND status IN ?", farmID, []string{string(domain.FieldPlanted), string(domain.FieldReady)}).
		Order("field_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fields for farm %s: %w", farmID, err)
	}
	return toFieldStates(rows), nil
}

// UpdateGrowth commits a growth stage and status for a field returned by
// ListPlanted. The row is only updated while it is still PLANTED with the
// listed crop and planting date; otherwise domain.ErrFieldChanged is returned.
func (s *Store) UpdateGrowth(ctx context.Context, listed domain.FieldState, stage domain.GrowthStage, status domain.FieldStatus) error {
	farmID, fieldID := listed.FarmID, listed.FieldID
	if listed.PlantedDate == nil {
		return fmt.Errorf("update growth %s/%s: %w", farmID, fieldID, domain.ErrFieldChanged)
	}
	res := s.db.WithContext(ctx).
		Model(&fieldRecord{}).
		Where("farm_id = ? AND field_id = ? AND status = ? AND crop_type = ? AND planted_date = ?",
			farmID, fieldID, string(domain.FieldPlanted), string(listed.CropType), listed.PlantedDate.UTC()).
		Updates(map[string]any{
			"growth_stage": string(stage),
			"status":       string(status),
			"updated_at":   s.clock.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update growth %s/%s: %w", farmID, fieldID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update growth %s/%s: %w", farmID, fieldID, domain.ErrFieldChanged)
	}
	return nil
}

// MarkHarvested empties the field and stores the harvest questionnaire
// answers in one transaction.
func (s *Store) MarkHarvested(ctx context.Context, farmID, fieldID string, answers []domain.FeedbackAnswer) error {
	now := s.clock.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&fieldRecord{}).
			Where("farm_id = ? AND field_id = ?", farmID, fieldID).
			Updates(map[string]any{
				"crop_type":    "",
				"growth_stage": "",
				"planted_date": nil,
				"status":       string(domain.FieldEmpty),
				"updated_at":   now,
			}).Error
		if err != nil {
			return fmt.Errorf("empty field %s/%s: %w", farmID, fieldID, err)
		}
		if len(answers) == 0 {
			return nil
		}

		rows := make([]feedbackRecord, 0, len(answers))
		for _, a := range answers {
			rows = append(rows, feedbackRecord{
				FarmID:          farmID,
				FieldID:         fieldID,
				QuestionID:      a.QuestionID,
				AnswerLabel:     a.AnswerLabel,
				AnswerValue:     a.AnswerValue,
				Multiplier:      a.Multiplier,
				TargetParameter: a.TargetParameter,
				CreatedAt:       now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("store feedback %s/%s: %w", farmID, fieldID, err)
		}
		return nil
	})
}

// FeedbackFactors returns the farm's average answer multiplier per target
// parameter. Answers without a target or with a non-positive multiplier are
// ignored.
func (s *Store) FeedbackFactors(ctx context.Context, farmID string) (map[string]float64, error) {
	var rows []struct {
		TargetParameter string
		Factor          float64
	}
	err := s.db.WithContext(ctx).
		Model(&feedbackRecord{}).
		Select("target_parameter, AVG(multiplier) AS factor").
		Where("farm_id = ? AND target_parameter <> '' AND multiplier > 0", farmID).
		Group("target_parameter").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("feedback factors for farm %s: %w", farmID, err)
	}

	factors := make(map[string]float64, len(rows))
	for _, r := range rows {
		factors[r.TargetParameter] = r.Factor
	}
	return factors, nil
}

// SaveRecommendation appends rec to the farm's history and prunes the farm's
// expired entries.
func (s *Store) SaveRecommendation(ctx context.Context, rec domain.Recommendation) error {
	now := s.clock.Now().UTC()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	row := newRecommendationRecord(rec, created.UTC().Add(HistoryRetention))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("farm_id = ? AND expires_at <= ?", rec.FarmID, now).Delete(&recommendationRecord{}).Error; err != nil {
			return fmt.Errorf("prune history for farm %s: %w", rec.FarmID, err)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("save recommendation %s: %w", rec.ID, err)
		}
		return nil
	})
}

// History returns the farm's unexpired recommendations, newest first.
func (s *Store) History(ctx context.Context, farmID string, limit int) ([]domain.Recommendation, error) {
	q := s.db.WithContext(ctx).
		Where("farm_id = ? AND expires_at > ?", farmID, s.clock.Now().UTC()).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []recommendationRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("history for farm %s: %w", farmID, err)
	}

	out := make([]domain.Recommendation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func toFieldStates(rows []fieldRecord) []domain.FieldState {
	out := make([]domain.FieldState, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
