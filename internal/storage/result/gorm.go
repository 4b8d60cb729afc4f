package result

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/newthinker/quarry/internal/backtest"
	"github.com/newthinker/quarry/internal/core"
	"github.com/newthinker/quarry/internal/storage/archive"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SummaryModel is the denormalized row stored per run.
type SummaryModel struct {
	ID             string         `gorm:"column:id;primaryKey;size:36"`
	StrategyID     string         `gorm:"column:strategy_id;index:idx_results_strategy,priority:1;size:64"`
	Symbol         string         `gorm:"column:symbol;size:32"`
	Source         string         `gorm:"column:source;size:32"`
	Interval       string         `gorm:"column:interval_code;size:8"`
	StartDate      time.Time      `gorm:"column:start_date"`
	EndDate        time.Time      `gorm:"column:end_date"`
	InitialCapital float64        `gorm:"column:initial_capital"`
	FinalCapital   float64        `gorm:"column:final_capital"`
	TotalReturnPct float64        `gorm:"column:total_return_pct"`
	TotalTrades    int            `gorm:"column:total_trades"`
	WinRate        float64        `gorm:"column:win_rate"`
	SharpeRatio    float64        `gorm:"column:sharpe_ratio"`
	MaxDrawdownPct float64        `gorm:"column:max_drawdown_pct"`
	Warnings       datatypes.JSON `gorm:"column:warnings;type:TEXT"`
	BlobPath       string         `gorm:"column:blob_path"`
	CreatedAt      time.Time      `gorm:"column:created_at;index:idx_results_strategy,priority:2"`
}

func (SummaryModel) TableName() string { return "backtest_results" }

// GormStore writes summary rows through gorm and full results to an archive.
type GormStore struct {
	db     *gorm.DB
	blobs  archive.Storage
	logger *zap.Logger
}

// NewGormStore wraps db and blobs. The backtest_results table must be migrated.
func NewGormStore(db *gorm.DB, blobs archive.Storage, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, blobs: blobs, logger: logger}
}

// Save archives the full result first so a stored row always has a readable blob.
func (g *GormStore) Save(ctx context.Context, r *backtest.Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return core.WrapError(core.ErrPersistence, err)
	}
	path := BlobPath(r.StrategyID, r.ID)
	if err := g.blobs.Write(ctx, path, raw); err != nil {
		return core.WrapError(core.ErrPersistence, err)
	}

	row := toModel(r.Summary())
	row.BlobPath = path
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		if delErr := g.blobs.Delete(ctx, path); delErr != nil {
			g.logger.Warn("orphaned result blob", zap.String("path", path), zap.Error(delErr))
		}
		return core.WrapError(core.ErrPersistence, err)
	}
	return nil
}

func (g *GormStore) Get(ctx context.Context, id string) (*backtest.Result, error) {
	var row SummaryModel
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, core.WrapError(core.ErrPersistence, err)
	}

	raw, err := g.blobs.Read(ctx, row.BlobPath)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, core.WrapError(core.ErrPersistence, err)
	}
	var res backtest.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, core.WrapError(core.ErrPersistence, err)
	}
	return &res, nil
}

func (g *GormStore) List(ctx context.Context, filter backtest.ResultFilter) ([]backtest.Summary, error) {
	q := g.db.WithContext(ctx).Model(&SummaryModel{})
	if filter.StrategyID != "" {
		q = q.Where("strategy_id = ?", filter.StrategyID)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", core.NormalizeSymbol(filter.Symbol))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []SummaryModel
	if err := q.Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, core.WrapError(core.ErrPersistence, err)
	}
	out := make([]backtest.Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSummary())
	}
	return out, nil
}

func toModel(s backtest.Summary) SummaryModel {
	m := SummaryModel{
		ID:             s.ID,
		StrategyID:     s.StrategyID,
		Symbol:         s.Symbol,
		Source:         s.Source,
		Interval:       string(s.Interval),
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
		InitialCapital: s.InitialCapital,
		FinalCapital:   s.FinalCapital,
		TotalReturnPct: s.TotalReturnPct,
		TotalTrades:    s.TotalTrades,
		WinRate:        s.WinRate,
		SharpeRatio:    s.SharpeRatio,
		MaxDrawdownPct: s.MaxDrawdownPct,
		CreatedAt:      s.CreatedAt,
	}
	if len(s.Warnings) > 0 {
		raw, _ := json.Marshal(s.Warnings)
		m.Warnings = datatypes.JSON(raw)
	}
	return m
}

func (m SummaryModel) toSummary() backtest.Summary {
	s := backtest.Summary{
		ID:             m.ID,
		StrategyID:     m.StrategyID,
		Symbol:         m.Symbol,
		Source:         m.Source,
		Interval:       core.Interval(m.Interval),
		StartDate:      m.StartDate.UTC(),
		EndDate:        m.EndDate.UTC(),
		InitialCapital: m.InitialCapital,
		FinalCapital:   m.FinalCapital,
		TotalReturnPct: m.TotalReturnPct,
		TotalTrades:    m.TotalTrades,
		WinRate:        m.WinRate,
		SharpeRatio:    m.SharpeRatio,
		MaxDrawdownPct: m.MaxDrawdownPct,
		CreatedAt:      m.CreatedAt.UTC(),
	}
	if len(m.Warnings) > 0 {
		_ = json.Unmarshal(m.Warnings, &s.Warnings)
	}
	return s
}
