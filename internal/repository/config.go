package repository

import (
	"context"
	"encoding/json"
	"errors"

	"parlor/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// configRecordID is the primary key of the single configuration row.
const configRecordID = 1

// ConfigRepository stores the one-row deployment configuration blob.
type ConfigRepository interface {
	// Load returns the stored key-value map; a missing record yields an
	// empty map (first run).
	Load(ctx context.Context) (map[string]string, error)
	// Save persists the full map, creating the record if absent.
	Save(ctx context.Context, values map[string]string) error
}

type configRepository struct {
	db *gorm.DB
}

// NewConfigRepository creates a new ConfigRepository
func NewConfigRepository(db *gorm.DB) ConfigRepository {
	return &configRepository{db: db}
}

func (r *configRepository) Load(ctx context.Context) (map[string]string, error) {
	var record models.ConfigRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", configRecordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	values := map[string]string{}
	if record.Data != "" {
		if err := json.Unmarshal([]byte(record.Data), &values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (r *configRepository) Save(ctx context.Context, values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	record := models.ConfigRecord{ID: configRecordID, Data: string(data)}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).
		Create(&record).Error
}
