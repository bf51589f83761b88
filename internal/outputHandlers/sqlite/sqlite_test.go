package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/AlfredBerg/rod-records/internal/deeds"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSqliteOutputRecordsResults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")
	out := &SqliteOutput{Database: dbPath, Logger: zaptest.NewLogger(t)}
	require.NoError(t, out.Init())

	ok := &county.Result{
		Parcel: parcel.Request{ID: "123-45-6789", Jurisdiction: parcel.Charleston},
		Dir:    "records/123-45-6789",
		Stage:  county.Done,
		Documents: []county.Document{
			{Label: "Property Card", Path: "records/123-45-6789/Property Card.pdf"},
			{Label: "DB A285 112", Path: "records/123-45-6789/DB A285 112.pdf"},
		},
		Deeds:   []deeds.Reference{{Book: "A285", Page: "112"}},
		Fetched: 1,
	}
	failed := &county.Result{
		Parcel: parcel.Request{ID: "234", Jurisdiction: parcel.Berkeley},
		Stage:  county.StartSearch,
		Err:    &county.StageError{Stage: county.ParcelLocated, Err: errors.New("no such parcel")},
	}
	require.NoError(t, out.HandleResult("run-1", ok))
	require.NoError(t, out.HandleResult("run-1", failed))
	require.NoError(t, out.Cleanup())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var status, stage, detail string
	var fetched int
	err = db.QueryRow("SELECT status, stage, fetched, detail FROM parcels WHERE parcel = ?", "123-45-6789").
		Scan(&status, &stage, &fetched, &detail)
	require.NoError(t, err)
	assert.Equal(t, "success", status)
	assert.Equal(t, "done", stage)
	assert.Equal(t, 1, fetched)
	assert.JSONEq(t, `{"dir":"records/123-45-6789","deeds":["DB A285 112"]}`, detail)

	var errText string
	err = db.QueryRow("SELECT status, error FROM parcels WHERE parcel = ?", "234").Scan(&status, &errText)
	require.NoError(t, err)
	assert.Equal(t, "failed", status)
	assert.Equal(t, "parcel-located: no such parcel", errText)

	var docs int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM documents WHERE run_id = ?", "run-1").Scan(&docs))
	assert.Equal(t, 2, docs)
}

func TestSqliteOutputRequiresDatabase(t *testing.T) {
	out := &SqliteOutput{}
	assert.Error(t, out.Init())
}
