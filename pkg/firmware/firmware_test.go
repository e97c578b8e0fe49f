package firmware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("http://10.0.0.1/images/cpld.vme"))
	assert.True(t, IsRemote("https://fw.example.net/bios.bin"))
	assert.False(t, IsRemote("/tmp/cpld.vme"))
	assert.False(t, IsRemote("file:///tmp/cpld.vme"))
	assert.False(t, IsRemote("http:///nohost"))
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "bios.bin")
	require.NoError(t, os.WriteFile(img, []byte("bios"), 0o644))

	f := NewFetcher(t.TempDir())
	got, err := f.Resolve(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	_, err = f.Resolve(context.Background(), filepath.Join(dir, "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fw/cpld.vme":
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			w.Write([]byte("cpld-image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir)
	f.Token = "secret"

	got, err := f.Resolve(context.Background(), srv.URL+"/fw/cpld.vme")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cpld.vme"), got)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "cpld-image", string(data))

	_, err = f.Download(context.Background(), srv.URL+"/fw/missing.vme")
	assert.ErrorIs(t, err, ErrDownload)
	_, statErr := os.Stat(filepath.Join(dir, "missing.vme"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = f.Download(context.Background(), srv.URL+"/")
	assert.ErrorIs(t, err, ErrDownload)
}
