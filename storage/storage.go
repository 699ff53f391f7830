package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UploadTarget is where one source image ends up on the disk.
type UploadTarget struct {
	Folder    string `json:"folder"`
	FileName  string `json:"filename"`
	SourceURL string `json:"source_url"`
}

// Path is the absolute disk path of the target file.
func (t UploadTarget) Path() string {
	return "/" + strings.Trim(t.Folder, "/") + "/" + t.FileName
}

// Resource is the metadata the disk reports for a file or folder.
type Resource struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Type     string    `json:"type"`
	Created  time.Time `json:"created"`
	Embedded *struct {
		Items []Resource `json:"items"`
		Total int        `json:"total"`
	} `json:"_embedded,omitempty"`
}

func (r Resource) IsDir() bool {
	return r.Type == "dir"
}

// Items lists the children of a folder resource.
func (r Resource) Items() []Resource {
	if r.Embedded == nil {
		return nil
	}
	return r.Embedded.Items
}

// StatusError is returned for any non-2xx answer from the disk API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Method, e.Path, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

type StorageProvider interface {
	CreateFolder(ctx context.Context, path string) error
	Upload(ctx context.Context, target UploadTarget) error
}
