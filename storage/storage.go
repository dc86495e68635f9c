package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrContentNotFound means the content id does not name a stored object.
var ErrContentNotFound = errors.New("content not found")

// ContentLocator turns a content id into a URL a device can download from.
type ContentLocator interface {
	Locate(ctx context.Context, contentID string) (string, error)
}

// StaticLocator serves content from a fixed base URL, e.g. a CDN in front of the media
// library.
type StaticLocator struct {
	base string
}

func NewStaticLocator(base string) *StaticLocator {
	return &StaticLocator{base: strings.TrimSuffix(base, "/")}
}

func (s *StaticLocator) Locate(_ context.Context, contentID string) (string, error) {
	if contentID == "" {
		return "", ErrContentNotFound
	}
	if s.base == "" {
		return "", fmt.Errorf("no content base url configured for %s", contentID)
	}
	return s.base + "/" + url.PathEscape(contentID), nil
}
