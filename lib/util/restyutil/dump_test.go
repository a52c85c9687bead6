package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestDumpWritesRedactedExchanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=secret")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "dump")
	output, err := NewDirectoryOutput(dir)
	require.NoError(t, err)

	client := resty.New()
	Dump(client, output)

	for i := 0; i < 2; i++ {
		_, err = client.R().SetHeader("Cookie", "session=secret").Get(srv.URL)
		require.NoError(t, err)
	}

	contents, err := os.ReadFile(filepath.Join(dir, "2.http"))
	require.NoError(t, err)
	require.Contains(t, string(contents), "GET "+srv.URL)
	require.Contains(t, string(contents), `{"ok":true}`)
	require.Contains(t, string(contents), "Cookie: <redacted>")
	require.NotContains(t, string(contents), "secret")
}

func TestDumpNilOutput(t *testing.T) {
	client := resty.New()
	Dump(client, nil)
}
