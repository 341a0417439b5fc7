package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 🗄️ SQL 智能体存储
// =============================================================================

// agentRow 数据库中的一条注册表记录
type agentRow struct {
	Name       string `gorm:"primaryKey;size:255"`
	Definition string `gorm:"type:text;not null"`
	SavedAt    time.Time
	UpdatedAt  time.Time
}

// SQLAgentStore 基于 GORM 的 AgentStore 实现，支持 sqlite / postgres / mysql
type SQLAgentStore struct {
	db    *gorm.DB
	table string
}

// OpenDialector 根据驱动名创建 GORM Dialector
func OpenDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite", "":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", driver)
	}
}

// NewSQLAgentStore 按配置打开数据库并创建存储
func NewSQLAgentStore(config StoreConfig) (*SQLAgentStore, error) {
	dialector, err := OpenDialector(config.SQL.Driver, config.SQL.DSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewSQLAgentStoreWithDB(db, config.SQL.Table)
}

// NewSQLAgentStoreWithDB 使用已有连接创建存储，并自动迁移表结构
func NewSQLAgentStoreWithDB(db *gorm.DB, table string) (*SQLAgentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db cannot be nil", ErrInvalidInput)
	}
	if table == "" {
		table = "agent_records"
	}
	s := &SQLAgentStore{db: db, table: table}
	if err := s.tx(context.Background()).AutoMigrate(&agentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate agent table: %w", err)
	}
	return s, nil
}

func (s *SQLAgentStore) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Close 关闭底层连接
func (s *SQLAgentStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping 检查数据库连接
func (s *SQLAgentStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Save 插入或更新记录
func (s *SQLAgentStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(&rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	row := agentRow{Name: rec.Name, Definition: string(data), SavedAt: rec.SavedAt}
	err = s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"definition", "saved_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save agent %q: %w", rec.Name, err)
	}
	return nil
}

// Restore 读取记录
func (s *SQLAgentStore) Restore(ctx context.Context, name string) (*Record, error) {
	var row agentRow
	err := s.tx(ctx).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore agent %q: %w", name, err)
	}
	return decodeRecord([]byte(row.Definition))
}

// Remove 删除记录
func (s *SQLAgentStore) Remove(ctx context.Context, name string) error {
	res := s.tx(ctx).Where("name = ?", name).Delete(&agentRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove agent %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List 返回全部名称
func (s *SQLAgentStore) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.tx(ctx).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return names, nil
}
