// Package pipeline resolves a breed's images and copies them into a disk folder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"3nt3/dog-uploader/storage"
)

var ErrFolder = errors.New("folder could not be created")

type Resolver interface {
	ListSubBreeds(ctx context.Context, breed string) ([]string, error)
	ResolveImageURLs(ctx context.Context, breed string, subBreeds []string) ([]string, error)
}

type FailedUpload struct {
	// Index is the position of Target in Report.Targets.
	Index  int
	Target storage.UploadTarget
	Err    error
}

type Report struct {
	Breed      string
	Folder     string
	SubBreeds  []string
	URLs       []string
	Targets    []storage.UploadTarget
	Uploaded   []storage.UploadTarget
	Failed     []FailedUpload
	ResolveErr error
	FolderErr  error
	Started    time.Time
	Finished   time.Time
}

// OK reports whether images were resolved and every one of them made it to the disk.
func (r Report) OK() bool {
	return r.ResolveErr == nil && r.FolderErr == nil && len(r.Failed) == 0
}

type Pipeline struct {
	resolver Resolver
	uploader storage.StorageProvider
	log      *slog.Logger
	now      func() time.Time
}

func New(resolver Resolver, uploader storage.StorageProvider, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		resolver: resolver,
		uploader: uploader,
		log:      log,
		now:      time.Now,
	}
}

// Run copies one random image per sub-breed of breed (or one for the breed) into
// folder. The error is non-nil only when the folder could not be created; lookup
// and per-file failures are logged and recorded in the report.
func (p *Pipeline) Run(ctx context.Context, breed, folder string) (Report, error) {
	rep := Report{Breed: breed, Folder: folder, Started: p.now()}

	log := p.log.With("breed", breed, "folder", folder)

	subs, err := p.resolver.ListSubBreeds(ctx, breed)
	if err != nil {
		log.Error("error fetching sub-breeds", "error", err)
		subs = nil
	}
	rep.SubBreeds = subs

	urls, err := p.resolver.ResolveImageURLs(ctx, breed, subs)
	if err != nil {
		log.Error("error fetching images", "error", err)
		rep.ResolveErr = err
		urls = nil
	}
	rep.URLs = urls
	log.Info("resolved images", "sub_breeds", len(subs), "urls", len(urls))

	if err := p.uploader.CreateFolder(ctx, folder); err != nil {
		log.Error("failed to create folder", "error", err)
		rep.FolderErr = err
		rep.Finished = p.now()
		return rep, fmt.Errorf("%w: %w", ErrFolder, err)
	}

	rep.Targets = storage.Targets(folder, urls)
	for i, target := range rep.Targets {
		if err := p.uploader.Upload(ctx, target); err != nil {
			log.Error("failed to upload file", "name", target.FileName, "url", target.SourceURL, "error", err)
			rep.Failed = append(rep.Failed, FailedUpload{Index: i, Target: target, Err: err})
			continue
		}
		rep.Uploaded = append(rep.Uploaded, target)
	}

	log.Info("run finished", "uploaded", len(rep.Uploaded), "failed", len(rep.Failed))
	rep.Finished = p.now()
	return rep, nil
}
