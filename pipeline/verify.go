package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"3nt3/dog-uploader/storage"
)

// Verify checks that folder is a directory holding exactly one file per sub-breed
// (one for a breed without sub-breeds), each named after breed. An empty breed only
// checks that folder is a directory.
func Verify(folder storage.Resource, breed string, subBreeds []string) error {
	if !folder.IsDir() {
		return fmt.Errorf("%s is a %s, not a folder", folder.Path, folder.Type)
	}
	if breed == "" {
		return nil
	}

	var errs []error

	want := len(subBreeds)
	if want == 0 {
		want = 1
	}
	items := folder.Items()
	if len(items) != want {
		errs = append(errs, fmt.Errorf("%s holds %d items, want %d", folder.Path, len(items), want))
	}

	for _, item := range items {
		if item.Type != "file" {
			errs = append(errs, fmt.Errorf("%s is a %s, want a file", item.Name, item.Type))
			continue
		}
		if !strings.HasPrefix(item.Name, breed) {
			errs = append(errs, fmt.Errorf("%s is not named after %s", item.Name, breed))
		}
	}
	return errors.Join(errs...)
}
