// Package fakeapi serves in-memory stand-ins for the Dog CEO breed catalog and the
// Yandex Disk REST API. Tests point the real clients at them, and the fake command
// runs them locally for dry runs.
package fakeapi

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/labstack/echo/v4"
)

const DefaultImageHost = "https://images.dog.ceo"

type catalogReply struct {
	Message any    `json:"message"`
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
}

type DogCEO struct {
	mu        sync.Mutex
	breeds    map[string][]string
	failures  map[string]int
	requests  []string
	served    int
	imageHost string

	e *echo.Echo
}

func NewDogCEO() *DogCEO {
	d := &DogCEO{
		breeds:    make(map[string][]string),
		failures:  make(map[string]int),
		imageHost: DefaultImageHost,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api := e.Group("/api", d.track)
	api.GET("/breeds/list/all", d.listAll)
	api.GET("/breed/:breed/list", d.listSubBreeds)
	api.GET("/breed/:breed/images/random", d.randomImage)
	api.GET("/breed/:breed/:sub/images/random", d.randomImage)

	d.e = e
	return d
}

// SeedDefaults registers a small catalog good enough for local runs.
func (d *DogCEO) SeedDefaults() {
	d.AddBreed("doberman")
	d.AddBreed("bulldog", "boston", "english", "french")
	d.AddBreed("collie", "border")
	d.AddBreed("spaniel", "blenheim", "brittany", "cocker", "irish", "japanese", "sussex", "welsh")
}

func (d *DogCEO) AddBreed(breed string, subBreeds ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breeds[breed] = append([]string{}, subBreeds...)
}

// Fail makes every request to path answer with status.
func (d *DogCEO) Fail(path string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[path] = status
}

func (d *DogCEO) SetImageHost(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imageHost = host
}

// Requests returns the request paths seen so far, in arrival order.
func (d *DogCEO) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.requests...)
}

func (d *DogCEO) Echo() *echo.Echo {
	return d.e
}

func (d *DogCEO) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.e.ServeHTTP(w, r)
}

func (d *DogCEO) track(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path

		d.mu.Lock()
		d.requests = append(d.requests, path)
		status, fail := d.failures[path]
		d.mu.Unlock()

		if fail {
			return c.JSON(status, catalogReply{
				Message: http.StatusText(status),
				Status:  "error",
				Code:    status,
			})
		}
		return next(c)
	}
}

func (d *DogCEO) listAll(c echo.Context) error {
	d.mu.Lock()
	all := make(map[string][]string, len(d.breeds))
	for breed, subs := range d.breeds {
		all[breed] = append([]string{}, subs...)
	}
	d.mu.Unlock()

	return c.JSON(http.StatusOK, catalogReply{Message: all, Status: "success"})
}

func (d *DogCEO) listSubBreeds(c echo.Context) error {
	breed := c.Param("breed")

	d.mu.Lock()
	subs, ok := d.breeds[breed]
	subs = append([]string{}, subs...)
	d.mu.Unlock()

	if !ok {
		return breedNotFound(c)
	}
	sort.Strings(subs)
	return c.JSON(http.StatusOK, catalogReply{Message: subs, Status: "success"})
}

func (d *DogCEO) randomImage(c echo.Context) error {
	breed := c.Param("breed")
	sub := c.Param("sub")

	d.mu.Lock()
	defer d.mu.Unlock()

	subs, ok := d.breeds[breed]
	if !ok {
		return breedNotFound(c)
	}

	dir := breed
	if sub != "" {
		if !contains(subs, sub) {
			return c.JSON(http.StatusNotFound, catalogReply{
				Message: "Breed not found (sub breed does not exist)",
				Status:  "error",
				Code:    http.StatusNotFound,
			})
		}
		dir = breed + "-" + sub
	}

	d.served++
	url := fmt.Sprintf("%s/breeds/%s/n%08d_%d.jpg", d.imageHost, dir, len(d.requests), d.served)
	return c.JSON(http.StatusOK, catalogReply{Message: url, Status: "success"})
}

func breedNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, catalogReply{
		Message: "Breed not found (master breed does not exist)",
		Status:  "error",
		Code:    http.StatusNotFound,
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
