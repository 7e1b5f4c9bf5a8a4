// Package fetcher opens source feeds over HTTP, FTP or the local filesystem
// and parses them as streaming CSV, JSON arrays or XLSX workbooks.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Opener resolves a source location to a reader by scheme: http(s):// and
// ftp:// are downloaded, file:// and bare paths are opened locally.
type Opener struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewOpener returns an Opener backed by the default HTTP and FTP fetchers.
func NewOpener(httpOpts HTTPOptions, ftpOpts FTPOptions) *Opener {
	return &Opener{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// Open returns a reader for location. The caller must close it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, eris.New("fetcher: empty location")
	}

	switch scheme(location) {
	case "http", "https":
		if o.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
		}
		return o.HTTP.Download(ctx, location)
	case "ftp":
		if o.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
		}
		return o.FTP.Download(ctx, location)
	case "file":
		location = strings.TrimPrefix(location, "file://")
	case "":
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme in %s", location)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", location)
	}
	return f, nil
}

// scheme returns the lowercased URL scheme of location, or "" for a path.
func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// Ext returns the lowercased file extension of location, ignoring any query
// string or fragment.
func Ext(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	slash := strings.LastIndex(location, "/")
	dot := strings.LastIndex(location, ".")
	if dot < 0 || dot < slash {
		return ""
	}
	return strings.ToLower(location[dot:])
}
