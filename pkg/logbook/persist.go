package logbook

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glompo-dev/glompo/pkg/jsonutil"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// OptimizerRow is the persisted per-optimizer detail record.
type OptimizerRow struct {
	OptID         uint32 `gorm:"primaryKey;autoIncrement:false"`
	Type          string
	InitNote      string
	StartTime     time.Time
	EndTime       time.Time
	EndCond       string
	Slots         int
	StartingPoint string
}

// IterationRow is one persisted iteration. X and Extras are JSON
// encoded; Fx and FxBest are stored as strings so the +Inf failure
// marker survives.
type IterationRow struct {
	ID           uint   `gorm:"primaryKey"`
	OptID        uint32 `gorm:"index"`
	NIter        int
	FCallOverall uint64
	FCallOpt     int
	Fx           string
	FxBest       string
	IBest        int
	Timestamp    float64
	X            string
	Extras       string
}

// MessageRow is one persisted free-form optimizer message.
type MessageRow struct {
	ID    uint   `gorm:"primaryKey"`
	OptID uint32 `gorm:"index"`
	Text  string
}

// MetadataRow is one persisted free-form annotation.
type MetadataRow struct {
	ID    uint   `gorm:"primaryKey"`
	OptID uint32 `gorm:"index"`
	Key   string `gorm:"column:key"`
	Value string
}

// Close flushes the log to its SQLite file and marks it closed.
// Closing is idempotent; a log without a configured file just closes.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	path := l.dbPath
	l.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := l.flush(path); err != nil {
		return fmt.Errorf("failed to flush log to %s: %w", path, err)
	}
	return nil
}

func (l *Log) flush(path string) error {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(&OptimizerRow{}, &IterationRow{}, &MessageRow{}, &MetadataRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, d := range l.Dump() {
			startJSON, err := jsonutil.Marshal(d.Meta.StartingPoint)
			if err != nil {
				return err
			}
			row := OptimizerRow{
				OptID:         d.Meta.OptID,
				Type:          d.Meta.Type,
				InitNote:      d.Meta.InitNote,
				StartTime:     d.Meta.StartTime,
				EndTime:       d.Meta.EndTime,
				EndCond:       d.Meta.EndCond,
				Slots:         d.Meta.Slots,
				StartingPoint: string(startJSON),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			for _, it := range d.Iters {
				xJSON, err := jsonutil.Marshal(it.X)
				if err != nil {
					return err
				}
				extrasJSON := []byte("[]")
				if len(it.Extras) > 0 {
					extrasJSON, err = jsonutil.Marshal(it.Extras)
					if err != nil {
						return err
					}
				}
				ir := IterationRow{
					OptID:        d.Meta.OptID,
					NIter:        it.NIter,
					FCallOverall: it.FCallOverall,
					FCallOpt:     it.FCallOpt,
					Fx:           opt.FormatFx(it.Fx),
					FxBest:       opt.FormatFx(it.FxBest),
					IBest:        it.IBest,
					Timestamp:    it.Timestamp,
					X:            string(xJSON),
					Extras:       string(extrasJSON),
				}
				if err := tx.Create(&ir).Error; err != nil {
					return err
				}
			}
			for _, msg := range d.Messages {
				if err := tx.Create(&MessageRow{OptID: d.Meta.OptID, Text: msg}).Error; err != nil {
					return err
				}
			}
			for k, v := range d.Extra {
				if err := tx.Create(&MetadataRow{OptID: d.Meta.OptID, Key: k, Value: v}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
