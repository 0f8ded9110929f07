package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVaultServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "/v1/secret/data/medgo/queue", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestApplyVaultSecrets_Disabled(t *testing.T) {
	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{})

	require.NoError(t, err)
	assert.False(t, result.Enabled)
}

func TestApplyVaultSecrets_Incomplete(t *testing.T) {
	_, err := ApplyVaultSecrets(context.Background(), VaultConfig{Enabled: true, Addr: "http://vault"})

	assert.ErrorIs(t, err, ErrIncompleteConfig)
}

func TestApplyVaultSecrets_LoadsKVv2(t *testing.T) {
	server := newVaultServer(t, `{"data":{"data":{"DB_PASSWORD":"s3cret","QUEUE_STATS_TTL_SECONDS":30,"REDIS_PASSWORD":"keep"}}}`)
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("QUEUE_STATS_TTL_SECONDS", "")
	t.Setenv("REDIS_PASSWORD", "from-env")

	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL,
		Token:     "root",
		Mount:     "secret",
		Path:      "medgo/queue",
		KVVersion: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "s3cret", os.Getenv("DB_PASSWORD"))
	assert.Equal(t, "30", os.Getenv("QUEUE_STATS_TTL_SECONDS"))
	assert.Equal(t, "from-env", os.Getenv("REDIS_PASSWORD"))
}

func TestApplyVaultSecrets_RejectedToken(t *testing.T) {
	server := newVaultServer(t, `{}`)

	_, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL,
		Token:     "wrong",
		Mount:     "secret",
		Path:      "medgo/queue",
		KVVersion: 2,
	})

	assert.ErrorContains(t, err, "403")
}

func TestBuildVaultURL(t *testing.T) {
	url, err := buildVaultURL("http://vault:8200/", "/secret/", "/medgo", 1)
	require.NoError(t, err)
	assert.Equal(t, "http://vault:8200/v1/secret/medgo", url)

	_, err = buildVaultURL("", "secret", "medgo", 2)
	assert.Error(t, err)
}
