package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Announce is one announce attempt against one tracker.
type Announce struct {
	ID         uint   `gorm:"primaryKey"`
	TrackerURL string `gorm:"index"`
	InfoHash   string `gorm:"index;size:40"`
	Event      string
	Interval   int64
	Leechers   uint32
	Seeders    uint32
	Error      string
	CreatedAt  int64
	Peers      []Peer `gorm:"constraint:OnDelete:CASCADE"`
}

type Peer struct {
	ID         uint `gorm:"primaryKey"`
	AnnounceID uint `gorm:"not null;index"`
	IPAddress  string
	Port       int
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema. ":memory:" gives a private in-memory database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer and every ":memory:" connection is a new
	// database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := db.AutoMigrate(&Announce{}, &Peer{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
