package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StrategyModel is the persisted form of a Strategy. The rule set is stored as JSON.
type StrategyModel struct {
	ID          string         `gorm:"column:id;primaryKey;size:64"`
	Name        string         `gorm:"column:name;size:128"`
	Description string         `gorm:"column:description"`
	ConfigJSON  datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (StrategyModel) TableName() string { return "strategies" }

// GormRepository stores strategies in a SQL database through gorm.
type GormRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormRepository wraps db. The strategies table must already be migrated.
func NewGormRepository(db *gorm.DB, logger *zap.Logger) *GormRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormRepository{db: db, logger: logger}
}

func (r *GormRepository) Get(ctx context.Context, id string) (Strategy, error) {
	var row StrategyModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Strategy{}, notFound(id)
	}
	if err != nil {
		return Strategy{}, core.WrapError(core.ErrPersistence, err)
	}
	return row.toStrategy()
}

func (r *GormRepository) List(ctx context.Context) ([]Strategy, error) {
	var rows []StrategyModel
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, core.WrapError(core.ErrPersistence, err)
	}
	out := make([]Strategy, 0, len(rows))
	for _, row := range rows {
		s, err := row.toStrategy()
		if err != nil {
			r.logger.Warn("skipping unreadable strategy", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *GormRepository) Save(ctx context.Context, s Strategy) error {
	if s.ID == "" {
		return core.Validationf("strategy id is required")
	}
	row := StrategyModel{ID: s.ID, Name: s.Name, Description: s.Description, UpdatedAt: time.Now().UTC()}
	if s.Config != nil {
		raw, err := json.Marshal(s.Config)
		if err != nil {
			return core.Validationf("encode config: %v", err)
		}
		row.ConfigJSON = datatypes.JSON(raw)
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return core.WrapError(core.ErrPersistence, err)
	}
	return nil
}

func (m StrategyModel) toStrategy() (Strategy, error) {
	s := Strategy{ID: m.ID, Name: m.Name, Description: m.Description}
	if len(m.ConfigJSON) == 0 || string(m.ConfigJSON) == "null" {
		return s, nil
	}
	var cfg Configuration
	if err := json.Unmarshal(m.ConfigJSON, &cfg); err != nil {
		return Strategy{}, core.WrapError(core.ErrPersistence, err)
	}
	s.Config = &cfg
	return s, nil
}
