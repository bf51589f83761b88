package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlfredBerg/rod-records/internal/county"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SqliteOutput is a manifest of what every run retrieved: one row per parcel outcome and
// one row per saved document.
type SqliteOutput struct {
	Database string
	Logger   *zap.Logger

	db         *sql.DB
	resultChan chan parcelRow
	wg         sync.WaitGroup
}

type parcelRow struct {
	runID  string
	result *county.Result
	at     time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS parcels (
	id integer not null primary key,
	run_id text not null,
	parcel text not null,
	jurisdiction text not null,
	status text not null,
	stage text not null,
	error text,
	deeds integer not null,
	fetched integer not null,
	detail text,
	finished_at text not null
);
CREATE TABLE IF NOT EXISTS documents (
	id integer not null primary key,
	run_id text not null,
	parcel text not null,
	label text not null,
	path text not null
);`

func (o *SqliteOutput) Init() error {
	if o.Database == "" {
		return errors.New("sqlite database file not set")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", o.Database)
	if err != nil {
		return err
	}
	// The go sqlite driver does not allow concurrent writes
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	o.db = db

	// Buffered so a slow disk does not hold up the browser
	o.resultChan = make(chan parcelRow, 20)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for r := range o.resultChan {
			if err := o.insert(r); err != nil {
				o.Logger.Error("failed to record parcel", zap.String("parcel", r.result.Parcel.ID), zap.Error(err))
			}
		}
	}()
	return nil
}

type detail struct {
	Dir     string   `json:"dir"`
	Missing []string `json:"missing,omitempty"`
	Deeds   []string `json:"deeds,omitempty"`
}

func (o *SqliteOutput) insert(r parcelRow) error {
	res := r.result
	status, errText := "success", sql.NullString{}
	if res.Err != nil {
		status = "failed"
		errText = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	d := detail{Dir: res.Dir, Missing: res.Missing}
	for _, ref := range res.Deeds {
		d.Deeds = append(d.Deeds, ref.Label())
	}
	djson, err := json.Marshal(d)
	if err != nil {
		return err
	}

	tx, err := o.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO parcels(run_id, parcel, jurisdiction, status, stage, error, deeds, fetched, detail, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		r.runID, res.Parcel.ID, res.Parcel.Jurisdiction.String(), status, res.Stage.String(), errText,
		len(res.Deeds), res.Fetched, string(djson), r.at.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	for _, doc := range res.Documents {
		_, err = tx.Exec("INSERT INTO documents(run_id, parcel, label, path) VALUES(?, ?, ?, ?);",
			r.runID, res.Parcel.ID, doc.Label, doc.Path)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// HandleResult queues the outcome of one parcel. It is safe to use from multiple
// goroutines.
func (o *SqliteOutput) HandleResult(runID string, res *county.Result) error {
	if o.resultChan == nil {
		return errors.New("sqlite output not initialised")
	}
	o.resultChan <- parcelRow{runID: runID, result: res, at: time.Now()}
	return nil
}

// Cleanup flushes queued results and closes the database.
func (o *SqliteOutput) Cleanup() error {
	close(o.resultChan)
	o.wg.Wait()
	return o.db.Close()
}
