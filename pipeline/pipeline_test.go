package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"3nt3/dog-uploader/dogceo"
	"3nt3/dog-uploader/fakeapi"
	"3nt3/dog-uploader/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubResolver struct {
	subs    []string
	subsErr error
	urlsErr error
	gotSubs []string
}

func (s *stubResolver) ListSubBreeds(ctx context.Context, breed string) ([]string, error) {
	if s.subsErr != nil {
		return nil, s.subsErr
	}
	return s.subs, nil
}

func (s *stubResolver) ResolveImageURLs(ctx context.Context, breed string, subs []string) ([]string, error) {
	s.gotSubs = subs
	if s.urlsErr != nil {
		return nil, s.urlsErr
	}
	if len(subs) == 0 {
		return []string{"https://images.dog.ceo/breeds/" + breed + "/1.jpg"}, nil
	}
	var urls []string
	for _, sub := range subs {
		urls = append(urls, "https://images.dog.ceo/breeds/"+breed+"-"+sub+"/1.jpg")
	}
	return urls, nil
}

type stubUploader struct {
	folderErr error
	failNames map[string]bool
	folders   []string
	uploads   []storage.UploadTarget
}

func (s *stubUploader) CreateFolder(ctx context.Context, path string) error {
	s.folders = append(s.folders, path)
	return s.folderErr
}

func (s *stubUploader) Upload(ctx context.Context, target storage.UploadTarget) error {
	s.uploads = append(s.uploads, target)
	if s.failNames[target.FileName] {
		return errors.New("boom")
	}
	return nil
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		breed     string
		subs      []string
		wantNames []string
	}{
		{"no sub-breeds", "doberman", nil, []string{"doberman_1.jpg"}},
		{"sub-breeds in order", "bulldog", []string{"sub1", "sub2"}, []string{"bulldog-sub1_1.jpg", "bulldog-sub2_1.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &stubResolver{subs: tt.subs}
			up := &stubUploader{}

			rep, err := New(res, up, quiet).Run(context.Background(), tt.breed, "test_folder")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(rep.URLs) != len(tt.wantNames) {
				t.Fatalf("urls = %v", rep.URLs)
			}
			if len(up.folders) != 1 || up.folders[0] != "test_folder" {
				t.Errorf("folders = %v", up.folders)
			}
			if len(up.uploads) != len(tt.wantNames) {
				t.Fatalf("uploads = %d, want %d", len(up.uploads), len(tt.wantNames))
			}
			for i, want := range tt.wantNames {
				if up.uploads[i].FileName != want {
					t.Errorf("upload %d = %q, want %q", i, up.uploads[i].FileName, want)
				}
				if up.uploads[i].Folder != "test_folder" {
					t.Errorf("upload %d folder = %q", i, up.uploads[i].Folder)
				}
			}
			if !rep.OK() || len(rep.Uploaded) != len(tt.wantNames) {
				t.Errorf("report = %+v", rep)
			}
			if rep.Finished.Before(rep.Started) {
				t.Error("finished before started")
			}
		})
	}
}

func TestRunSubBreedLookupFailureFallsBackToBreed(t *testing.T) {
	res := &stubResolver{subs: []string{"a"}, subsErr: errors.New("down")}
	up := &stubUploader{}

	rep, err := New(res, up, quiet).Run(context.Background(), "collie", "f")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.gotSubs) != 0 {
		t.Errorf("resolver got sub-breeds %v after a failed lookup", res.gotSubs)
	}
	if len(up.uploads) != 1 || len(rep.SubBreeds) != 0 {
		t.Errorf("uploads = %d, sub-breeds = %v", len(up.uploads), rep.SubBreeds)
	}
}

func TestRunImageLookupFailureUploadsNothing(t *testing.T) {
	res := &stubResolver{subs: []string{"a", "b"}, urlsErr: errors.New("down")}
	up := &stubUploader{}

	rep, err := New(res, up, quiet).Run(context.Background(), "bulldog", "f")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.URLs) != 0 || len(up.uploads) != 0 {
		t.Errorf("urls = %v, uploads = %d", rep.URLs, len(up.uploads))
	}
	if rep.ResolveErr == nil {
		t.Error("ResolveErr not recorded")
	}
}

func TestRunFolderFailureSkipsUploads(t *testing.T) {
	res := &stubResolver{}
	up := &stubUploader{folderErr: errors.New("forbidden")}

	rep, err := New(res, up, quiet).Run(context.Background(), "doberman", "f")
	if !errors.Is(err, ErrFolder) {
		t.Fatalf("err = %v, want ErrFolder", err)
	}
	if len(up.uploads) != 0 {
		t.Errorf("uploads = %d, want 0", len(up.uploads))
	}
	if rep.FolderErr == nil || rep.OK() {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunContinuesAfterUploadFailure(t *testing.T) {
	res := &stubResolver{subs: []string{"sub1", "sub2", "sub3"}}
	up := &stubUploader{failNames: map[string]bool{"bulldog-sub2_1.jpg": true}}

	rep, err := New(res, up, quiet).Run(context.Background(), "bulldog", "f")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(up.uploads) != 3 {
		t.Fatalf("uploads = %d, want 3", len(up.uploads))
	}
	if len(rep.Uploaded) != 2 || len(rep.Failed) != 1 || rep.OK() {
		t.Errorf("uploaded = %d failed = %d", len(rep.Uploaded), len(rep.Failed))
	}
	if rep.Failed[0].Target.FileName != "bulldog-sub2_1.jpg" || rep.Failed[0].Index != 1 {
		t.Errorf("failed = %+v", rep.Failed[0])
	}
	if len(rep.Targets) != 3 || rep.Targets[rep.Failed[0].Index] != rep.Failed[0].Target {
		t.Errorf("targets = %+v", rep.Targets)
	}
}

func setupAPIs(t *testing.T) (*fakeapi.DogCEO, *fakeapi.Disk, *Pipeline) {
	t.Helper()
	const token = "AgAAAAAJtest_tokenxkUEdew"

	dogs := fakeapi.NewDogCEO()
	dogs.AddBreed("doberman")
	dogs.AddBreed("bulldog", "sub1", "sub2")
	dogSrv := httptest.NewServer(dogs)
	t.Cleanup(dogSrv.Close)

	disk := fakeapi.NewDisk(token)
	diskSrv := httptest.NewServer(disk)
	t.Cleanup(diskSrv.Close)

	resolver := dogceo.New(dogSrv.URL+"/api", 5*time.Second, quiet)
	uploader := storage.NewYandexDisk(storage.DiskOptions{
		BaseURL: diskSrv.URL,
		Token:   token,
		Timeout: 5 * time.Second,
		Logger:  quiet,
	})
	return dogs, disk, New(resolver, uploader, quiet)
}

func TestRunAgainstFakeAPIs(t *testing.T) {
	tests := []struct {
		breed      string
		wantPrefix []string
	}{
		{"doberman", []string{"doberman_"}},
		{"bulldog", []string{"bulldog-sub1_", "bulldog-sub2_"}},
	}
	for _, tt := range tests {
		t.Run(tt.breed, func(t *testing.T) {
			_, disk, p := setupAPIs(t)

			rep, err := p.Run(context.Background(), tt.breed, "test_folder")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !rep.OK() {
				t.Fatalf("report not ok: %+v", rep)
			}

			ups := disk.Uploads()
			if len(ups) != len(tt.wantPrefix) {
				t.Fatalf("uploads = %d, want %d", len(ups), len(tt.wantPrefix))
			}
			for i, prefix := range tt.wantPrefix {
				if !strings.HasPrefix(ups[i].Path, "test_folder/"+prefix) {
					t.Errorf("upload %d path = %q, want prefix %q", i, ups[i].Path, prefix)
				}
				if ups[i].URL != rep.URLs[i] {
					t.Errorf("upload %d url = %q, want %q", i, ups[i].URL, rep.URLs[i])
				}
			}
			files := disk.Files("test_folder")
			if len(files) != len(tt.wantPrefix) {
				t.Errorf("files = %v", files)
			}
			for _, f := range files {
				if !strings.HasPrefix(f, tt.breed) {
					t.Errorf("file %q does not start with %q", f, tt.breed)
				}
			}
		})
	}
}

func TestRunAgainstFakeAPIsFolderFailure(t *testing.T) {
	_, disk, p := setupAPIs(t)
	disk.FailFolders(http.StatusForbidden)

	if _, err := p.Run(context.Background(), "bulldog", "test_folder"); !errors.Is(err, ErrFolder) {
		t.Fatalf("err = %v, want ErrFolder", err)
	}
	if n := len(disk.Uploads()); n != 0 {
		t.Errorf("uploads = %d, want 0", n)
	}
}

func TestRunAgainstFakeAPIsUnknownBreed(t *testing.T) {
	_, disk, p := setupAPIs(t)

	rep, err := p.Run(context.Background(), "dragon", "test_folder")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.URLs) != 0 || len(disk.Uploads()) != 0 {
		t.Errorf("urls = %v, uploads = %v", rep.URLs, disk.Uploads())
	}
}
