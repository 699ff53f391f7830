// Package journal keeps a sqlite record of finished runs and their uploads.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"3nt3/dog-uploader/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	"id"          INTEGER PRIMARY KEY AUTOINCREMENT,
	"breed"       TEXT NOT NULL,
	"folder"      TEXT NOT NULL,
	"started_at"  TIMESTAMP NOT NULL,
	"finished_at" TIMESTAMP NOT NULL,
	"resolved"    INTEGER NOT NULL,
	"uploaded"    INTEGER NOT NULL,
	"failed"      INTEGER NOT NULL,
	"error"       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS uploads (
	"run_id"     INTEGER NOT NULL REFERENCES runs(id),
	"position"   INTEGER NOT NULL,
	"file_name"  TEXT NOT NULL,
	"source_url" TEXT NOT NULL,
	"ok"         BOOLEAN NOT NULL,
	"error"      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);`

type Run struct {
	ID         int64
	Breed      string
	Folder     string
	StartedAt  time.Time
	FinishedAt time.Time
	Resolved   int
	Uploaded   int
	Failed     int
	Error      string
}

type Upload struct {
	FileName  string
	SourceURL string
	OK        bool
	Error     string
}

type Journal struct {
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create journal tables: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores rep and returns the new run id.
func (j *Journal) Record(ctx context.Context, rep pipeline.Report) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	runErr := ""
	switch {
	case rep.FolderErr != nil:
		runErr = rep.FolderErr.Error()
	case rep.ResolveErr != nil:
		runErr = rep.ResolveErr.Error()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (breed, folder, started_at, finished_at, resolved, uploaded, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.Breed, rep.Folder, rep.Started.UTC(), rep.Finished.UTC(),
		len(rep.URLs), len(rep.Uploaded), len(rep.Failed), runErr)
	if err != nil {
		return 0, fmt.Errorf("unable to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	failed := make(map[int]error, len(rep.Failed))
	for _, f := range rep.Failed {
		failed[f.Index] = f.Err
	}
	for i, t := range rep.Targets {
		u := Upload{FileName: t.FileName, SourceURL: t.SourceURL, OK: true}
		if err, ok := failed[i]; ok {
			u.OK = false
			u.Error = err.Error()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO uploads (run_id, position, file_name, source_url, ok, error) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i+1, u.FileName, u.SourceURL, u.OK, u.Error)
		if err != nil {
			return 0, fmt.Errorf("unable to insert upload: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, breed, folder, started_at, finished_at, resolved, uploaded, failed, error
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Breed, &r.Folder, &r.StartedAt, &r.FinishedAt,
			&r.Resolved, &r.Uploaded, &r.Failed, &r.Error); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Uploads returns the uploads of one run in the order they were attempted.
func (j *Journal) Uploads(ctx context.Context, runID int64) ([]Upload, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT file_name, source_url, ok, error FROM uploads WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("unable to query uploads: %w", err)
	}
	defer rows.Close()

	var ups []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.FileName, &u.SourceURL, &u.OK, &u.Error); err != nil {
			return nil, err
		}
		ups = append(ups, u)
	}
	return ups, rows.Err()
}
