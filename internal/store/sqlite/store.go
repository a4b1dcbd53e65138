package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tunix/internal/store/model"
	"tunix/internal/trader"
)

// TradeStore 把状态机的开平仓流水落到 sqlite，并为 HTTP API 提供
// 查询。实现 trader.Journal。
type TradeStore struct {
	db *gorm.DB
}

func NewTradeStore(path string) (*TradeStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewTradeStoreFromDB(db)
}

func NewTradeStoreFromDB(db *gorm.DB) (*TradeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(&model.TradeModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &TradeStore{db: db}, nil
}

// Record 写入一条流水。
func (s *TradeStore) Record(ctx context.Context, rec trader.TradeRecord) error {
	row := &model.TradeModel{
		Timestamp:  rec.Time.UnixMilli(),
		Action:     rec.Action,
		Side:       rec.Side,
		EntryType:  rec.EntryType,
		PositionID: rec.PositionID,
		Quantity:   rec.Quantity.String(),
		Price:      rec.Price,
		Trigger:    rec.Trigger,
	}
	if rec.Pnl != nil {
		pnl := rec.Pnl.InexactFloat64()
		row.Pnl = &pnl
	}
	if detail, err := json.Marshal(map[string]any{
		"quantity": rec.Quantity.String(),
		"trigger":  rec.Trigger,
	}); err == nil {
		row.Detail = detail
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// ListRecent 返回最近的流水，最新在前。
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]model.TradeModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.TradeModel
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TradeStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
