package history

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type record struct {
	ID      uint   `gorm:"primaryKey"`
	Trace   string `gorm:"unique;size:36"`
	Port    int    `gorm:"index"`
	Session int
	Rounds  int
	Players int
	Outcome string `gorm:"size:32"`
	Started int64
	Ended   int64 `gorm:"index"`
}

func (record) TableName() string {
	return "results"
}

type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&record{})
	if err != nil {
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Record(ctx context.Context, result Result) error {
	return s.db.WithContext(ctx).Create(&record{
		Trace:   result.Trace,
		Port:    result.Port,
		Session: result.Session,
		Rounds:  result.Rounds,
		Players: result.Players,
		Outcome: result.Outcome,
		Started: result.Started.UnixMilli(),
		Ended:   result.Ended.UnixMilli(),
	}).Error
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	var records []record
	err := s.db.WithContext(ctx).
		Order("ended desc, id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(records))
	for i, r := range records {
		results[i] = Result{
			Trace:   r.Trace,
			Port:    r.Port,
			Session: r.Session,
			Rounds:  r.Rounds,
			Players: r.Players,
			Outcome: r.Outcome,
			Started: time.UnixMilli(r.Started),
			Ended:   time.UnixMilli(r.Ended),
		}
	}
	return results, nil
}

func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
