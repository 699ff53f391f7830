package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"3nt3/dog-uploader/pipeline"
	"3nt3/dog-uploader/storage"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRead(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	started := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	first := storage.UploadTarget{Folder: "test_folder", FileName: "x_a.jpg", SourceURL: "https://x/a.jpg"}
	second := storage.UploadTarget{Folder: "test_folder", FileName: "x_b.jpg", SourceURL: "https://x/b.jpg"}
	rep := pipeline.Report{
		Breed:    "bulldog",
		Folder:   "test_folder",
		URLs:     []string{"https://x/a.jpg", "https://x/b.jpg"},
		Targets:  []storage.UploadTarget{first, second},
		Uploaded: []storage.UploadTarget{second},
		Failed: []pipeline.FailedUpload{
			{Index: 0, Target: first, Err: errors.New("507")},
		},
		Started:  started,
		Finished: started.Add(2 * time.Second),
	}

	id, err := j.Record(ctx, rep)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != id || r.Breed != "bulldog" || r.Folder != "test_folder" {
		t.Errorf("run = %+v", r)
	}
	if r.Resolved != 2 || r.Uploaded != 1 || r.Failed != 1 {
		t.Errorf("counts = %d/%d/%d", r.Resolved, r.Uploaded, r.Failed)
	}
	if !r.StartedAt.Equal(started) || r.FinishedAt.Sub(r.StartedAt) != 2*time.Second {
		t.Errorf("times = %v..%v", r.StartedAt, r.FinishedAt)
	}

	ups, err := j.Uploads(ctx, id)
	if err != nil {
		t.Fatalf("Uploads: %v", err)
	}
	if len(ups) != 2 {
		t.Fatalf("uploads = %d, want 2", len(ups))
	}
	// a failure on the first target stays first: rows follow upload order
	if ups[0].OK || ups[0].FileName != "x_a.jpg" || ups[0].Error != "507" {
		t.Errorf("first upload = %+v", ups[0])
	}
	if !ups[1].OK || ups[1].FileName != "x_b.jpg" || ups[1].Error != "" {
		t.Errorf("second upload = %+v", ups[1])
	}
}

func TestRecentNewestFirst(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	for _, breed := range []string{"doberman", "collie", "bulldog"} {
		now := time.Now()
		if _, err := j.Record(ctx, pipeline.Report{Breed: breed, Folder: breed, Started: now, Finished: now}); err != nil {
			t.Fatalf("Record %s: %v", breed, err)
		}
	}

	runs, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].Breed != "bulldog" || runs[1].Breed != "collie" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRecordFolderError(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	now := time.Now()
	if _, err := j.Record(ctx, pipeline.Report{
		Breed: "doberman", Folder: "f", Started: now, Finished: now,
		FolderErr: errors.New("forbidden"),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	runs, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if runs[0].Error != "forbidden" {
		t.Errorf("error = %q", runs[0].Error)
	}
}
