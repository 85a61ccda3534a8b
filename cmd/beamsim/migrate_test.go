package main

import (
	"path/filepath"
	"testing"

	"github.com/beamsim/beamsim/internal/database"
	"github.com/beamsim/beamsim/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func memoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.GetSqliteDB("", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Setup(db, zerolog.Nop()))
	return db
}

// seed records one session with an actor, two events and a performance
// sample, returning the session's row id.
func seed(t *testing.T, db *gorm.DB, uuid string) uint {
	t.Helper()
	s := model.Session{UUID: uuid, Name: "seed " + uuid, StartTime: start, TickRate: 500}
	require.NoError(t, db.Create(&s).Error)
	require.NoError(t, db.Create(&model.Actor{SessionID: s.ID, ActorID: 1, Definition: "crate", SpawnTime: start}).Error)
	require.NoError(t, db.Create(&[]model.EventRecord{
		{SessionID: s.ID, Tick: 1, Time: start, Kind: "actor_spawned", ActorID: 1},
		{SessionID: s.ID, Tick: 9, Time: start, Kind: "beam_broken", ActorID: 1},
	}).Error)
	require.NoError(t, db.Create(&model.PerformanceSample{SessionID: s.ID, Time: start, Tick: 10, TickRate: 500}).Error)
	return s.ID
}

func TestMigrateDumpRebindsSessions(t *testing.T) {
	src := memoryDB(t)
	dst := memoryDB(t)
	// occupy the first ids on dst so copied rows must be rebound
	seed(t, dst, "00000000-0000-0000-0000-000000000001")
	seed(t, src, "00000000-0000-0000-0000-000000000002")
	seed(t, src, "00000000-0000-0000-0000-000000000003")

	n, err := migrateDump(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var sessions []model.Session
	require.NoError(t, dst.Order("id").Find(&sessions).Error)
	require.Len(t, sessions, 3)
	for _, s := range sessions[1:] {
		var actors []model.Actor
		require.NoError(t, dst.Where("session_id = ?", s.ID).Find(&actors).Error)
		require.Len(t, actors, 1, s.UUID)
		assert.Equal(t, "crate", actors[0].Definition)

		var events int64
		require.NoError(t, dst.Model(&model.EventRecord{}).Where("session_id = ?", s.ID).Count(&events).Error)
		assert.Equal(t, int64(2), events)

		var perf int64
		require.NoError(t, dst.Model(&model.PerformanceSample{}).Where("session_id = ?", s.ID).Count(&perf).Error)
		assert.Equal(t, int64(1), perf)
	}
	assert.Equal(t, "00000000-0000-0000-0000-000000000003", sessions[2].UUID)

	// the same dump again collides on the session uuid and rolls back
	_, err = migrateDump(src, dst)
	assert.Error(t, err)
	var total int64
	require.NoError(t, dst.Model(&model.Session{}).Count(&total).Error)
	assert.Equal(t, int64(3), total)
}

func TestMigrateDumpsRenamesFiles(t *testing.T) {
	a := testApp(t)
	dir := t.TempDir()

	src := memoryDB(t)
	seed(t, src, "00000000-0000-0000-0000-00000000000a")
	path := filepath.Join(dir, "run.db")
	require.NoError(t, database.DumpMemoryDBToDisk(src, path))

	dst := memoryDB(t)
	migrated, err := a.migrateDumps(dst, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, migrated)
	assert.NoFileExists(t, path)
	assert.FileExists(t, path+".migrated")

	var s model.Session
	require.NoError(t, dst.First(&s).Error)
	assert.Equal(t, "00000000-0000-0000-0000-00000000000a", s.UUID)

	migrated, err = a.migrateDumps(dst, dir)
	require.NoError(t, err)
	assert.Empty(t, migrated)
}

func TestMigrateDumpsMissingDir(t *testing.T) {
	a := testApp(t)
	_, err := a.migrateDumps(memoryDB(t), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
