package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t testing.TB) SQLStore {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db)
}

func TestStore(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	{
		res, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		require.Len(t, res, 0)
	}
	{
		err := store.Set(ctx, map[string][]byte{
			"buffSessionCookie": []byte("abc"),
			"buffDeviceId":      []byte("device"),
		})
		require.NoError(t, err)

		res, err := store.Get(ctx, "buffSessionCookie", "buffDeviceId", "missing")
		require.NoError(t, err)
		require.Equal(t, map[string][]byte{
			"buffSessionCookie": []byte("abc"),
			"buffDeviceId":      []byte("device"),
		}, res)
	}
	{
		err := store.Set(ctx, map[string][]byte{"buffSessionCookie": []byte("def")})
		require.NoError(t, err)

		res, err := store.Get(ctx, "buffSessionCookie")
		require.NoError(t, err)
		require.Equal(t, []byte("def"), res["buffSessionCookie"])
	}
	{
		err := store.Remove(ctx, "buffSessionCookie", "missing")
		require.NoError(t, err)

		res, err := store.Get(ctx, "buffSessionCookie", "buffDeviceId")
		require.NoError(t, err)
		require.NotContains(t, res, "buffSessionCookie")
		require.Contains(t, res, "buffDeviceId")
	}
}

func TestJSONHelpers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	_, found, err := GetJSON[payload](ctx, store, "payload")
	require.NoError(t, err)
	require.False(t, found)

	err = SetJSON(ctx, store, map[string]any{
		"payload": payload{Name: "AK-47 | Redline", Count: 2},
		"stamp":   int64(1700000000),
	})
	require.NoError(t, err)

	got, found, err := GetJSON[payload](ctx, store, "payload")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload{Name: "AK-47 | Redline", Count: 2}, got)

	stamp, found, err := GetJSON[int64](ctx, store, "stamp")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1700000000), stamp)
}

func TestRemoteURL(t *testing.T) {
	require.Equal(t, "/tmp/buffcart.db", RemoteURL("/tmp/buffcart.db", "token"))
	require.Equal(t, "libsql://db.turso.io", RemoteURL("libsql://db.turso.io", ""))
	require.Equal(t, "libsql://db.turso.io?authToken=a%2Bb", RemoteURL("libsql://db.turso.io", "a+b"))
	require.Equal(t, "https://db.turso.io?tls=1&authToken=t", RemoteURL("https://db.turso.io?tls=1", "t"))
}
