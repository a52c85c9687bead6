package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Database string  `json:"database"`
	Rate     float64 `json:"rate"`
	Nested   struct {
		Addr string `json:"addr"`
	} `json:"nested"`
}

func write(t testing.TB, path, contents string) {
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestReadConfigMergesLayers(t *testing.T) {
	dir := t.TempDir()
	defaults := testConfig{Database: "default.db", Rate: 2}
	defaults.Nested.Addr = "127.0.0.1:1"

	write(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		database: "file.db",
		nested: { addr: "127.0.0.1:2" },
	}`)
	write(t, filepath.Join(dir, "config.local.json5"), `{ rate: 5 }`)

	config, err := ReadConfig(filepath.Join(dir, "config.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, "file.db", config.Database)
	require.Equal(t, 5.0, config.Rate)
	require.Equal(t, "127.0.0.1:2", config.Nested.Addr)
}

func TestReadConfigMissing(t *testing.T) {
	defaults := testConfig{Database: "default.db"}
	config, err := ReadConfig(filepath.Join(t.TempDir(), "config.json5"), defaults)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, defaults, config)
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{ database: `)
	_, err := ReadConfig(filepath.Join(dir, "config.json5"), testConfig{})
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	write(t, path, "CONFIGUTIL_TEST_VALUE=from-file\n")
	t.Setenv("CONFIGUTIL_TEST_VALUE", "")
	os.Unsetenv("CONFIGUTIL_TEST_VALUE")

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), path))
	require.Equal(t, "from-file", os.Getenv("CONFIGUTIL_TEST_VALUE"))
}
