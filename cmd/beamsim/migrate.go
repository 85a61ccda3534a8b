package main

import (
	"fmt"
	"os"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/database"
	"github.com/beamsim/beamsim/internal/model"
	"gorm.io/gorm"
)

const migrateBatch = 2000

// migrateTable copies the rows of one session table, rebinding them to the
// session's new id.
func migrateTable[M any](src, dst *gorm.DB, from, to uint, rebind func(*M, uint)) (int, error) {
	var rows []M
	if err := src.Where("session_id = ?", from).Find(&rows).Error; err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i := range rows {
		rebind(&rows[i], to)
	}
	if err := dst.CreateInBatches(&rows, migrateBatch).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// migrateSession copies one session and everything recorded under it in a
// single transaction on dst.
func migrateSession(src, dst *gorm.DB, s model.Session) error {
	from := s.ID
	s.ID = 0
	return dst.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&s).Error; err != nil {
			return fmt.Errorf("session: %w", err)
		}
		to := s.ID
		steps := []struct {
			table string
			copy  func() (int, error)
		}{
			{"actors", func() (int, error) {
				return migrateTable(src, tx, from, to, func(r *model.Actor, id uint) { r.SessionID = id })
			}},
			{"replay frames", func() (int, error) {
				return migrateTable(src, tx, from, to, func(r *model.ReplayFrame, id uint) { r.ID, r.SessionID = 0, id })
			}},
			{"actor states", func() (int, error) {
				return migrateTable(src, tx, from, to, func(r *model.ActorState, id uint) { r.ID, r.SessionID = 0, id })
			}},
			{"events", func() (int, error) {
				return migrateTable(src, tx, from, to, func(r *model.EventRecord, id uint) { r.ID, r.SessionID = 0, id })
			}},
			{"inputs", func() (int, error) {
				return migrateTable(src, tx, from, to, func(r *model.InputRecord, id uint) { r.ID, r.SessionID = 0, id })
			}},
			{"performance samples", func() (int, error) {
				return migrateTable(src, tx, from, to, func(r *model.PerformanceSample, id uint) { r.SessionID = id })
			}},
		}
		for _, step := range steps {
			if _, err := step.copy(); err != nil {
				return fmt.Errorf("%s: %w", step.table, err)
			}
		}
		return nil
	})
}

// migrateDump copies every session of an SQLite dump into dst.
func migrateDump(src, dst *gorm.DB) (int, error) {
	var sessions []model.Session
	if err := src.Order("id").Find(&sessions).Error; err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	for i, s := range sessions {
		if err := migrateSession(src, dst, s); err != nil {
			return i, fmt.Errorf("session %q: %w", s.UUID, err)
		}
	}
	return len(sessions), nil
}

// migrateDumps copies each dump in dir into dst and renames it to
// <path>.migrated once committed. It stops at the first failing dump.
func (a *app) migrateDumps(dst *gorm.DB, dir string) ([]string, error) {
	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return nil, fmt.Errorf("error getting backup database paths: %w", err)
	}

	var migrated []string
	for _, path := range paths {
		src, err := database.GetSqliteDB(path, a.zl)
		if err != nil {
			return migrated, fmt.Errorf("error opening %s: %w", path, err)
		}
		n, err := migrateDump(src, dst)
		if sqlDB, cerr := src.DB(); cerr == nil {
			_ = sqlDB.Close()
		}
		if err != nil {
			return migrated, fmt.Errorf("%s: %w", path, err)
		}
		a.log.Info("Migrated dump", "path", path, "sessions", n)
		if err := os.Rename(path, path+".migrated"); err != nil {
			a.log.Error("Error renaming sqlite file", "error", err)
		}
		migrated = append(migrated, path)
	}
	return migrated, nil
}

func (a *app) migrate(dir string) error {
	dst, err := database.GetPostgresDB(config.GetStorageConfig().Postgres, a.zl)
	if err != nil {
		return err
	}
	if err := database.Setup(dst, a.zl); err != nil {
		return err
	}
	migrated, err := a.migrateDumps(dst, dir)
	a.log.Info("Finished migrating dumps", "count", len(migrated), "paths", migrated)
	return err
}
