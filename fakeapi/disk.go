package fakeapi

import (
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Upload is one accepted remote-fetch request.
type Upload struct {
	Path      string
	URL       string
	Overwrite bool
}

type diskError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

type diskLink struct {
	Href      string `json:"href"`
	Method    string `json:"method"`
	Templated bool   `json:"templated"`
}

type diskResource struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Type     string        `json:"type"`
	Created  time.Time     `json:"created"`
	Source   string        `json:"source_url,omitempty"`
	Embedded *diskEmbedded `json:"_embedded,omitempty"`
}

type diskEmbedded struct {
	Path  string         `json:"path"`
	Items []diskResource `json:"items"`
	Total int            `json:"total"`
}

type diskEntry struct {
	dir     bool
	source  string
	created time.Time
}

type Disk struct {
	mu          sync.Mutex
	token       string
	entries     map[string]diskEntry
	folderCalls []string
	uploads     []Upload
	failFolders int
	failFiles   map[string]int
	operations  int

	e *echo.Echo
}

// NewDisk returns a disk API that accepts only "OAuth <token>".
func NewDisk(token string) *Disk {
	d := &Disk{
		token:     token,
		entries:   make(map[string]diskEntry),
		failFiles: make(map[string]int),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	v1 := e.Group("/v1/disk", d.auth)
	v1.PUT("/resources", d.createFolder)
	v1.GET("/resources", d.getResource)
	v1.POST("/resources/upload", d.upload)
	v1.GET("/operations/:id", d.operation)

	d.e = e
	return d
}

// FailFolders makes every folder creation answer with status.
func (d *Disk) FailFolders(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFolders = status
}

// FailFile makes uploads of the given file name answer with status.
func (d *Disk) FailFile(name string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFiles[name] = status
}

// FolderCalls returns the paths of every folder creation attempt, failed ones included.
func (d *Disk) FolderCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.folderCalls...)
}

// Uploads returns every upload attempt in arrival order, failed ones included.
func (d *Disk) Uploads() []Upload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Upload{}, d.uploads...)
}

// Files lists the file names stored directly under folder.
func (d *Disk) Files(folder string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	folder = cleanPath(folder)
	var names []string
	for p, ent := range d.entries {
		if !ent.dir && parentOf(p) == folder {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

func (d *Disk) Echo() *echo.Echo {
	return d.e
}

func (d *Disk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.e.ServeHTTP(w, r)
}

func (d *Disk) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get(echo.HeaderAuthorization) != "OAuth "+d.token {
			return c.JSON(http.StatusUnauthorized, diskError{
				Message:     "Не авторизован.",
				Description: "Unauthorized",
				Error:       "UnauthorizedError",
			})
		}
		return next(c)
	}
}

func (d *Disk) createFolder(c echo.Context) error {
	p := cleanPath(c.QueryParam("path"))

	d.mu.Lock()
	defer d.mu.Unlock()

	d.folderCalls = append(d.folderCalls, p)

	if d.failFolders != 0 {
		return c.JSON(d.failFolders, diskError{
			Message:     http.StatusText(d.failFolders),
			Description: "injected failure",
			Error:       "InjectedError",
		})
	}
	if p == "" {
		return c.JSON(http.StatusBadRequest, diskError{
			Message:     "Некорректные данные.",
			Description: "path is required",
			Error:       "FieldValidationError",
		})
	}
	if _, exists := d.entries[p]; exists {
		return c.JSON(http.StatusConflict, diskError{
			Message:     "По указанному пути уже существует папка с таким именем.",
			Description: "Specified path points to existent directory.",
			Error:       "DiskPathPointsToExistentDirectoryError",
		})
	}
	if !d.dirExists(parentOf(p)) {
		return c.JSON(http.StatusConflict, missingParent())
	}

	d.entries[p] = diskEntry{dir: true, created: time.Now().UTC()}
	return c.JSON(http.StatusCreated, d.link(c, "/v1/disk/resources?path=disk:/"+p))
}

func (d *Disk) getResource(c echo.Context) error {
	p := cleanPath(c.QueryParam("path"))

	d.mu.Lock()
	defer d.mu.Unlock()

	if p == "" {
		return c.JSON(http.StatusOK, d.describe("", diskEntry{dir: true}, true))
	}
	ent, ok := d.entries[p]
	if !ok {
		return c.JSON(http.StatusNotFound, diskError{
			Message:     "Не удалось найти запрошенный ресурс.",
			Description: "Resource not found.",
			Error:       "DiskNotFoundError",
		})
	}
	return c.JSON(http.StatusOK, d.describe(p, ent, true))
}

func (d *Disk) upload(c echo.Context) error {
	p := cleanPath(c.QueryParam("path"))
	src := c.QueryParam("url")
	overwrite := c.QueryParam("overwrite") == "true"

	d.mu.Lock()
	defer d.mu.Unlock()

	d.uploads = append(d.uploads, Upload{Path: p, URL: src, Overwrite: overwrite})

	if status, ok := d.failFiles[path.Base(p)]; ok {
		return c.JSON(status, diskError{
			Message:     http.StatusText(status),
			Description: "injected failure",
			Error:       "InjectedError",
		})
	}
	if p == "" || src == "" {
		return c.JSON(http.StatusBadRequest, diskError{
			Message:     "Некорректные данные.",
			Description: "path and url are required",
			Error:       "FieldValidationError",
		})
	}
	if !d.dirExists(parentOf(p)) {
		return c.JSON(http.StatusConflict, missingParent())
	}
	if ent, exists := d.entries[p]; exists && (ent.dir || !overwrite) {
		return c.JSON(http.StatusConflict, diskError{
			Message:     "Ресурс уже существует.",
			Description: "Resource already exists.",
			Error:       "DiskResourceAlreadyExistsError",
		})
	}

	d.entries[p] = diskEntry{source: src, created: time.Now().UTC()}
	d.operations++
	return c.JSON(http.StatusAccepted, d.link(c, fmt.Sprintf("/v1/disk/operations/%d", d.operations)))
}

func (d *Disk) operation(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (d *Disk) link(c echo.Context, p string) diskLink {
	req := c.Request()
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return diskLink{Href: scheme + "://" + req.Host + p, Method: http.MethodGet}
}

// describe must be called with d.mu held.
func (d *Disk) describe(p string, ent diskEntry, embed bool) diskResource {
	res := diskResource{
		Name:    path.Base("/" + p),
		Path:    "disk:/" + p,
		Type:    "file",
		Created: ent.created,
		Source:  ent.source,
	}
	if !ent.dir {
		return res
	}
	res.Type = "dir"
	if !embed {
		return res
	}

	var names []string
	for child := range d.entries {
		if parentOf(child) == p {
			names = append(names, child)
		}
	}
	sort.Strings(names)

	items := make([]diskResource, 0, len(names))
	for _, child := range names {
		items = append(items, d.describe(child, d.entries[child], false))
	}
	res.Embedded = &diskEmbedded{Path: res.Path, Items: items, Total: len(items)}
	return res
}

func (d *Disk) dirExists(p string) bool {
	if p == "" {
		return true
	}
	ent, ok := d.entries[p]
	return ok && ent.dir
}

func missingParent() diskError {
	return diskError{
		Message:     "Указанного пути не существует.",
		Description: "Specified path doesn't exists.",
		Error:       "DiskPathDoesntExistsError",
	}
}

// cleanPath maps "disk:/a/b/", "/a/b" and "a/b" to "a/b".
func cleanPath(p string) string {
	p = strings.TrimPrefix(p, "disk:")
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

func parentOf(p string) string {
	dir := path.Dir("/" + p)
	return strings.Trim(dir, "/")
}
