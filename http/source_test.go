package http_test

import (
	"bytes"
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dbpf"
	dbpfhttp "github.com/meigma/dbpf/http"
	"github.com/meigma/dbpf/internal/testutil"
)

func serve(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "archive.dat", time.Unix(1700000000, 0), bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := testutil.Pattern(400, 'a')
	src, err := dbpfhttp.NewSource(context.Background(), serve(t, data).URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
	assert.Equal(t, int64(1), src.Requests())

	buf := make([]byte, 16)
	n, err := src.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, data[10:26], buf[:n])
	assert.Equal(t, int64(1), src.Requests(), "header reads come from the initial fetch")

	n, err = src.ReadAt(buf, 200)
	require.NoError(t, err)
	assert.Equal(t, data[200:216], buf[:n])
	assert.Equal(t, int64(2), src.Requests())

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, data[len(data)-3:], edge[:n])
}

func TestOpenArchiveOverHTTP(t *testing.T) {
	t.Parallel()

	tgi := dbpf.TGI{Type: dbpf.TypeLText, Group: 1, Instance: 2}
	payload := testutil.Pattern(1000, 'q')
	data := testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgi, Data: payload, Compressed: true},
	}, testutil.ArchiveOptions{})

	src, err := dbpfhttp.NewSource(context.Background(), serve(t, data).URL)
	require.NoError(t, err)
	a, err := dbpf.OpenSource(src)
	require.NoError(t, err)

	e, ok := a.FindTGI(tgi.Type, tgi.Group, tgi.Instance)
	require.True(t, ok)
	got, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("no ranges here"))
	}))
	t.Cleanup(server.Close)

	_, err := dbpfhttp.NewSource(context.Background(), server.URL)
	require.ErrorIs(t, err, dbpfhttp.ErrRangeUnsupported)
}
