// Package historydb persists terminal command history per session in a
// local sqlite database, so history survives reconnects and restarts.
package historydb

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// CommandRecord is one executed terminal command.
type CommandRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;size:64"`
	Command   string
	CreatedAt int64
}

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&CommandRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one command for a session.
func (s *Store) Append(sessionID, command string) error {
	rec := CommandRecord{
		SessionID: sessionID,
		Command:   command,
		CreatedAt: time.Now().UnixMilli(),
	}
	return s.db.Create(&rec).Error
}

// Recent returns up to limit most recent commands for a session, oldest
// first, so callers can replay them into an in-memory ring.
func (s *Store) Recent(sessionID string, limit int) ([]string, error) {
	var records []CommandRecord
	err := s.db.
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	commands := make([]string, len(records))
	for i, rec := range records {
		commands[len(records)-1-i] = rec.Command
	}
	return commands, nil
}

// Trim deletes all but the newest keep records for a session.
func (s *Store) Trim(sessionID string, keep int) error {
	sub := s.db.Model(&CommandRecord{}).
		Select("id").
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(keep)
	return s.db.
		Where("session_id = ? AND id NOT IN (?)", sessionID, sub).
		Delete(&CommandRecord{}).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
