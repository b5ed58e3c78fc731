// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/rpsarena/models"
)

// GormArchive stores rounds through GORM.
type GormArchive struct {
	db *gorm.DB
}

func NewGormArchive(host string, port int, user, password, dbname string) (*GormArchive, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(DSN(host, port, user, password, dbname)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormArchiveFromDB(db)
}

// NewGormArchiveFromDB migrates the rounds table on an open connection.
func NewGormArchiveFromDB(db *gorm.DB) (*GormArchive, error) {
	if err := db.AutoMigrate(&models.GormRound{}); err != nil {
		return nil, err
	}
	return &GormArchive{db: db}, nil
}

// SaveRound inserts the round. A round that was already archived is kept as is.
func (a *GormArchive) SaveRound(ctx context.Context, r *models.RoundRecord) error {
	row := models.NewGormRound(r)
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "round_number"}},
			DoNothing: true,
		}).
		Create(row).Error
}

// RecentRounds returns the newest rounds username played, newest first.
func (a *GormArchive) RecentRounds(ctx context.Context, username string, limit int) ([]models.RoundRecord, error) {
	var rows []models.GormRound
	err := a.db.WithContext(ctx).
		Where("player_a = ? OR player_b = ?", username, username).
		Order("resolved_at desc").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.RoundRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Record())
	}
	return out, nil
}

// Round loads one archived round.
func (a *GormArchive) Round(ctx context.Context, roomID string, number int) (*models.RoundRecord, error) {
	var row models.GormRound
	err := a.db.WithContext(ctx).
		Where("room_id = ? AND round_number = ?", roomID, number).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := row.Record()
	return &rec, nil
}

func (a *GormArchive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
