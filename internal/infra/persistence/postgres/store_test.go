package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mute/internal/catalog/core"
	"mute/internal/config"
	"mute/internal/infra/persistence/postgres/testutil"
)

func shardRun() core.Run {
	return core.Run{
		Kind:      core.KindShard,
		Medium:    config.MediumWater,
		Density:   0.997,
		MuonCount: 1000,
		JobIndex:  3,
		Seed:      42,
		BlobKey:   "underground_energies/water_0.997_1000_Underground_Energies_3.txt",
		Lines:     4,
		Survivors: 17,
	}
}

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driverName)
		return db, nil
	})
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreCreatesStateTable(t *testing.T) {
	_, conn := openStub(t)
	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.DriverPostgres, s.Driver())
	require.NotEmpty(t, conn.Execs)
	assert.Contains(t, conn.Execs[0], "JSONB")
	assert.NotNil(t, s.DB())
}

func TestRecordPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	_, conn := openStub(t)
	s, err := NewStore(ctx, "ignored")
	require.NoError(t, err)
	rec, err := s.Record(ctx, shardRun())
	require.NoError(t, err)
	second := shardRun()
	second.JobIndex = 4
	_, err = s.Record(ctx, second)
	require.NoError(t, err)
	require.Len(t, conn.Tables["state"], 1)
	assert.Equal(t, runsBucket, conn.Tables["state"][0]["bucket"])

	again, err := NewStore(ctx, "ignored")
	require.NoError(t, err)
	runs, err := again.List(ctx, core.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, rec.ID, runs[0].ID)
	assert.Equal(t, 17, runs[0].Survivors)
	assert.Equal(t, 4, runs[1].JobIndex)
}

func TestRecordRollsBackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	for name, arm := range map[string]func(*testutil.StubConn){
		"begin":  func(c *testutil.StubConn) { c.FailBegin = true },
		"exec":   func(c *testutil.StubConn) { c.FailTables = map[string]bool{"state": true} },
		"commit": func(c *testutil.StubConn) { c.FailCommit = true },
	} {
		t.Run(name, func(t *testing.T) {
			_, conn := openStub(t)
			s, err := NewStore(ctx, "")
			require.NoError(t, err)
			arm(conn)
			_, err = s.Record(ctx, shardRun())
			assert.Error(t, err)
			runs, err := s.List(ctx, core.Filter{})
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestNewStoreFailures(t *testing.T) {
	ctx := context.Background()

	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("dial") })
	_, err := NewStore(ctx, "")
	restore()
	assert.ErrorContains(t, err, "open postgres")

	_, conn := openStub(t)
	conn.FailPing = true
	_, err = NewStore(ctx, "")
	assert.ErrorContains(t, err, "ping postgres")

	_, conn = openStub(t)
	conn.FailExec = true
	_, err = NewStore(ctx, "")
	assert.ErrorContains(t, err, "ensure state table")

	_, conn = openStub(t)
	conn.RowsErr = errors.New("broken cursor")
	_, err = NewStore(ctx, "")
	assert.ErrorContains(t, err, "iterate state")

	_, conn = openStub(t)
	conn.Tables["state"] = []map[string]any{{"bucket": "runs", "payload": []byte("{")}}
	_, err = NewStore(ctx, "")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "decode runs"))
}

func TestLoadSnapshotSkipsForeignBuckets(t *testing.T) {
	_, conn := openStub(t)
	conn.Tables["state"] = []map[string]any{
		{"bucket": "legacy", "payload": []byte("not json")},
		{"bucket": "runs", "payload": []byte(nil)},
	}
	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	runs, err := s.List(context.Background(), core.Filter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
