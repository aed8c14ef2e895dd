// Package http reads DBPF archives served over HTTP using range requests.
//
//	src, err := http.NewSource(ctx, "https://example.com/plugins/park.dat")
//	if err != nil {
//	    return err
//	}
//	a, err := dbpf.OpenSource(src)
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/meigma/dbpf"
)

// ErrRangeUnsupported is returned when the server ignores Range headers.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// Source implements dbpf.ByteSource over HTTP range requests.
//
// The archive header is fetched while probing, so opening an archive costs
// one request for the header and one for the index. Requests carry the
// validator seen while probing, so a file replaced on the server fails
// instead of mixing versions.
type Source struct {
	ctx     context.Context
	url     string
	client  *nethttp.Client
	headers nethttp.Header

	size     int64
	head     []byte
	etag     string
	modified string
	requests atomic.Int64
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

var _ dbpf.ByteSource = (*Source)(nil)

// NewSource fetches the archive header from url and records the file size.
// ctx bounds the header fetch and every later read.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{ctx: ctx, url: url, client: nethttp.DefaultClient}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if err := s.fetchHead(); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the length of the remote file.
func (s *Source) Size() int64 {
	return s.size
}

// Requests returns how many range requests have been sent, including the header fetch.
func (s *Source) Requests() int64 {
	return s.requests.Load()
}

// ReadAt reads len(p) bytes at off. Reads inside the header are served from
// the initial header fetch.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("http: read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) <= int64(len(s.head)) {
		return copy(p, s.head[off:]), nil
	}

	want := len(p)
	if rest := s.size - off; int64(want) > rest {
		want = int(rest)
	}
	body, _, err := s.get(off, int64(want))
	if err != nil {
		return 0, err
	}
	defer drain(body)

	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, fmt.Errorf("http: read %d bytes at %d: %w", want, off, err)
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Source) fetchHead() error {
	body, resp, err := s.get(0, dbpf.HeaderSize)
	if err != nil {
		return err
	}
	defer drain(body)

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	s.modified = resp.Header.Get("Last-Modified")

	n := min(size, dbpf.HeaderSize)
	s.head = make([]byte, n)
	if _, err := io.ReadFull(body, s.head); err != nil {
		return fmt.Errorf("http: read header: %w", err)
	}
	return nil
}

func (s *Source) get(off, length int64) (io.ReadCloser, *nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, nethttp.MethodGet, s.url, nil)
	if err != nil {
		return nil, nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))
	if s.etag != "" {
		req.Header.Set("If-Match", s.etag)
	} else if s.modified != "" {
		req.Header.Set("If-Unmodified-Since", s.modified)
	}

	s.requests.Add(1)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		return resp.Body, resp, nil
	case nethttp.StatusOK:
		drain(resp.Body)
		return nil, nil, ErrRangeUnsupported
	case nethttp.StatusRequestedRangeNotSatisfiable:
		drain(resp.Body)
		return nil, nil, io.EOF
	default:
		drain(resp.Body)
		return nil, nil, fmt.Errorf("http: range request failed: %s", resp.Status)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// parseContentRange returns the complete length from "bytes a-b/size".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	return size, nil
}
