package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// FileName derives a disk file name from an image URL: the last two path segments
// joined with "_", so ".../breeds/bulldog-french/n02108915_1.jpg" becomes
// "bulldog-french_n02108915_1.jpg". Catalog images live under a per-breed
// directory, which keeps names from different breeds apart.
func FileName(rawURL string) string {
	var segments []string
	if u, err := url.Parse(rawURL); err == nil {
		for _, s := range strings.Split(u.Path, "/") {
			if s != "" && s != "." && s != ".." {
				segments = append(segments, s)
			}
		}
	}

	switch len(segments) {
	case 0:
		return "image-" + shortHash(rawURL)
	case 1:
		return segments[0]
	default:
		return segments[len(segments)-2] + "_" + segments[len(segments)-1]
	}
}

// FileNames names a batch of URLs. A name already taken by a different URL gets
// a short hash of its URL before the extension, then a counter until it is free.
func FileNames(urls []string) []string {
	names := make([]string, len(urls))
	owner := make(map[string]string, len(urls))
	byURL := make(map[string]string, len(urls))

	// Natural names are reserved first so a renamed URL cannot take one later.
	for _, u := range urls {
		name := FileName(u)
		if _, taken := owner[name]; !taken {
			owner[name] = u
		}
	}

	for i, u := range urls {
		if name, ok := byURL[u]; ok {
			names[i] = name
			continue
		}

		name := FileName(u)
		if owner[name] != u {
			ext := path.Ext(name)
			stem := strings.TrimSuffix(name, ext) + "-" + shortHash(u)
			name = stem + ext
			for n := 2; ; n++ {
				prev, taken := owner[name]
				if !taken || prev == u {
					break
				}
				name = fmt.Sprintf("%s-%d%s", stem, n, ext)
			}
			owner[name] = u
		}
		byURL[u] = name
		names[i] = name
	}
	return names
}

// Targets pairs each URL with its folder and file name.
func Targets(folder string, urls []string) []UploadTarget {
	names := FileNames(urls)
	targets := make([]UploadTarget, len(urls))
	for i, u := range urls {
		targets[i] = UploadTarget{Folder: folder, FileName: names[i], SourceURL: u}
	}
	return targets
}

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:4])
}
