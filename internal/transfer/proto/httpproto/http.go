// Package httpproto implements gf_http: a single-resource fetch
// against one configured URL, grounded on backend/http/http.go's
// HEAD-for-metadata / GET-for-body pattern
// (http.NewRequestWithContext, status-code checking) but deliberately
// not the teacher's recursive HTML-directory-listing crawl — SPEC_
// FULL.md's SUPPLEMENTED FEATURES section calls for gf_http as a bare
// single-URL poller, not a directory crawler, so golang.org/x/net/html
// has no role here.
package httpproto

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// Driver is the gf_http protocol driver. It is fetch-only: AFD never
// sends files over HTTP, so OpenWrite/Delete/Rename are unsupported.
type Driver struct {
	client  *http.Client
	baseURL string
}

func New() *Driver {
	return &Driver{client: &http.Client{}}
}

func (d *Driver) Connect(ctx context.Context, cfg proto.Config) error {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	d.baseURL = fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	if cfg.ConnectTimeout > 0 {
		d.client.Timeout = cfg.ConnectTimeout
	}
	return nil
}

// Chdir records the URL path the single configured resource lives
// under; HTTP has no directory-creation concept so createIfMissing is
// ignored.
func (d *Driver) Chdir(ctx context.Context, dir string, createIfMissing bool, dirMode uint32) error {
	d.baseURL = d.baseURL + dir
	return nil
}

// List issues a HEAD request against the configured resource and
// reports it as the sole directory entry, the shape gf_http's
// single-resource poller needs to drive check_list (spec §4.3's
// fetch-worker extras) without a real directory listing.
func (d *Driver) List(ctx context.Context) ([]proto.FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.baseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("httpproto: HEAD %s: status %d", d.baseURL, resp.StatusCode)
	}
	info := proto.FileInfo{Name: resourceName(d.baseURL), Size: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.Mtime = t
		}
	}
	return []proto.FileInfo{info}, nil
}

func (d *Driver) OpenWrite(ctx context.Context, name string, offset, size int64) (io.WriteCloser, error) {
	return nil, fmt.Errorf("httpproto: send not supported")
}

func (d *Driver) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("httpproto: GET %s: status %d", d.baseURL, resp.StatusCode)
	}
	return resp.Body, nil
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	return fmt.Errorf("httpproto: remote delete not supported")
}

func (d *Driver) Rename(ctx context.Context, oldName, newName string) error {
	return fmt.Errorf("httpproto: rename not supported")
}

func (d *Driver) SupportsResume() bool { return false }

func (d *Driver) Quit(ctx context.Context) error { return nil }

func resourceName(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return url
}

var _ proto.Driver = (*Driver)(nil)
