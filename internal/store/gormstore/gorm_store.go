// Package gormstore persists the simulated portfolio in SQLite through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"polyagent/internal/portfolio"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore implements portfolio.Store. Every Save rewrites the account row
// and the position table inside one transaction.
type GormStore struct {
	db *gorm.DB
}

var _ portfolio.Store = (*GormStore)(nil)

// NewGormStore opens (and migrates) the database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&accountModel{}, &positionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Load(ctx context.Context) (*portfolio.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialised")
	}
	db := s.db.WithContext(ctx)
	var acct accountModel
	err := db.Where("id = ?", accountRowID).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	var rows []positionModel
	if err := db.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	p := portfolio.Portfolio{
		TotalTrades:     acct.TotalTrades,
		WinningTrades:   acct.WinningTrades,
		WinRate:         acct.WinRate,
		LastUpdated:     time.Unix(0, acct.LastUpdatedUnix).UTC(),
		OpenPositions:   []portfolio.Position{},
		ClosedPositions: []portfolio.Position{},
	}
	if p.Cash, err = parseDecimal(acct.Cash); err != nil {
		return nil, fmt.Errorf("account cash: %w", err)
	}
	if p.StartingCash, err = parseDecimal(acct.StartingCash); err != nil {
		return nil, fmt.Errorf("account starting cash: %w", err)
	}
	if p.TotalPnL, err = parseDecimal(acct.TotalPnL); err != nil {
		return nil, fmt.Errorf("account pnl: %w", err)
	}
	if p.TotalValue, err = parseDecimal(acct.TotalValue); err != nil {
		return nil, fmt.Errorf("account total value: %w", err)
	}
	for _, row := range rows {
		pos, err := row.toPosition()
		if err != nil {
			return nil, err
		}
		if pos.Status == portfolio.StatusClosed {
			p.ClosedPositions = append(p.ClosedPositions, pos)
		} else {
			p.OpenPositions = append(p.OpenPositions, pos)
		}
	}
	return &p, nil
}

func (s *GormStore) Save(ctx context.Context, p portfolio.Portfolio) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialised")
	}
	rows := make([]positionModel, 0, len(p.OpenPositions)+len(p.ClosedPositions))
	seq := 0
	for _, list := range [][]portfolio.Position{p.ClosedPositions, p.OpenPositions} {
		for _, pos := range list {
			m, err := newPositionModel(seq, pos)
			if err != nil {
				return err
			}
			rows = append(rows, m)
			seq++
		}
	}
	acct := newAccountModel(p)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&acct).Error; err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&positionModel{}).Error; err != nil {
			return fmt.Errorf("clear positions: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("save positions: %w", err)
		}
		return nil
	})
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
