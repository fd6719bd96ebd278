package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var ErrPathRequired = errors.New("journal: path required")

// Entry is one recorded command exchange.
type Entry struct {
	ID          uint      `gorm:"primaryKey"`
	CreatedAt   time.Time `gorm:"index"`
	Destination string    `gorm:"size:255;index"`
	StreamID    uint32
	HasStreamID bool
	Sequence    uint8
	MessageID   uint32
	BandwidthHz *float64
	FrequencyHz *float64
	Accepted    bool
	Reasons     string `gorm:"size:1024"`
	Attempts    int
	Fault       string `gorm:"size:1024"`
	DurationMS  int64
}

// ReasonList splits the stored reasons back into per-field details.
func (e Entry) ReasonList() []string {
	if strings.TrimSpace(e.Reasons) == "" {
		return nil
	}
	return strings.Split(e.Reasons, "; ")
}

// JoinReasons is the storage form of a detail list.
func JoinReasons(details []string) string {
	return strings.Join(details, "; ")
}

// Journal persists command exchanges in a sqlite file.
type Journal struct {
	db   *gorm.DB
	path string
}

// Open creates or opens the journal at path using the pure Go sqlite driver.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathRequired
	}
	gormLog := logger.New(gormWriter{}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path}, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("journal: configure %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("journal: migrate %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("journal opened")
	return &Journal{db: db, path: path}, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) Path() string {
	return j.path
}

// Record stores e, stamping CreatedAt when unset.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := j.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Entry
	err := j.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// ForDestination returns up to limit entries for dest, newest first.
func (j *Journal) ForDestination(ctx context.Context, dest string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Entry
	err := j.db.WithContext(ctx).Where("destination = ?", dest).Order("id desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("journal: query %s: %w", dest, err)
	}
	return out, nil
}

func (j *Journal) Health() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter routes gorm's warnings into the global zerolog logger.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "journal").Msgf(format, args...)
}
