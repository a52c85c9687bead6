package commands

import (
	"context"
	"testing"

	"buffcart/cmd/buffcart/globals"
	"buffcart/internal/credentials"

	"github.com/stretchr/testify/require"
)

func TestMask(t *testing.T) {
	require.Equal(t, "(absent)", mask(""))
	require.Equal(t, "********", mask("short"))
	require.Equal(t, "abcd...wxyz", mask("abcdefghijklmnopqrstuvwxyz"))
}

func TestSeededBridge(t *testing.T) {
	t.Setenv(globals.SessionEnv, "token-1")
	t.Setenv(globals.DeviceIDEnv, "")

	bridge := seededBridge()
	value, found, err := bridge.Get(context.Background(), "https://buff.163.com", credentials.SessionCookie)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "token-1", value)

	_, found, err = bridge.Get(context.Background(), "https://buff.163.com", credentials.DeviceIDCookie)
	require.NoError(t, err)
	require.False(t, found)
}

func TestOpenAppInMemory(t *testing.T) {
	cfg := globals.DefaultConfig()
	cfg.Database = ":memory:"
	cfg.CookiesFile = "cookies.json"

	value, err := openApp(cfg, false)
	require.NoError(t, err)
	defer value.Close()
	require.Nil(t, value.Bridge)

	value, err = openApp(cfg, true)
	require.NoError(t, err)
	defer value.Close()
	require.NotNil(t, value.Bridge)
}
