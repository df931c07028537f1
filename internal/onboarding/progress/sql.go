package progress

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one progress key in the onboarding_progress_entries table.
type Entry struct {
	Key       string    `gorm:"column:progress_key;primaryKey;type:varchar(255)"`
	Value     string    `gorm:"column:progress_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Entry) TableName() string { return "onboarding_progress_entries" }

// SQLKV stores progress keys in the primary database.
type SQLKV struct {
	db *gorm.DB
}

func NewSQLKV(db *gorm.DB) *SQLKV {
	return &SQLKV{db: db}
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("progress_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "progress_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress_value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *SQLKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("progress_key IN ?", keys).Delete(&Entry{}).Error
}
