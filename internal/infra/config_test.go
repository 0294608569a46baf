package infra

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := ParseConfig()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StorageSQLite, cfg.StorageDriver)
	require.Equal(t, "dfund.db", cfg.SQLitePath)
	require.Equal(t, 168*time.Hour, cfg.FinalizeGrace)
	require.Equal(t, time.Minute, cfg.WorkerPollInterval)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.Nil(t, cfg.ReviewPanel)
	require.Empty(t, cfg.TrustedProxies)
}

func TestParseConfigReadsListsAndDurations(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("REVIEW_PANEL", " expert-1, ,expert-2 ")
	t.Setenv("FINALIZE_GRACE_PERIOD", "36h")
	t.Setenv("HTTP_READ_TIMEOUT", "3s")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,2001:db8::/32")

	cfg, err := ParseConfig()
	require.NoError(t, err)
	require.Equal(t, StorageMemory, cfg.StorageDriver)
	require.Equal(t, []string{"expert-1", "expert-2"}, cfg.ReviewPanel)
	require.Equal(t, 36*time.Hour, cfg.FinalizeGrace)
	require.Equal(t, 3*time.Second, cfg.HTTPReadTimeout)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::/32"),
	}, cfg.TrustedProxies)
}

func TestParseConfigRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := ParseConfig()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://example")
	_, err = ParseConfig()
	require.NoError(t, err)
}

func TestParseConfigAllowsMissingSecretInTest(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := ParseConfig()
	require.NoError(t, err)
	require.Equal(t, "dfund", cfg.JWTIssuer)
}

func TestParseConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {"JWT_SECRET": ""},
		"unknown driver":  {"STORAGE_DRIVER": "mongo"},
		"negative grace":  {"FINALIZE_GRACE_PERIOD": "-1h"},
		"zero rate limit": {"RATE_LIMIT_PER_MINUTE": "0"},
		"bad duration":    {"WORKER_POLL_INTERVAL": "soon"},
		"bad proxy cidr":  {"TRUSTED_PROXIES": "10.0.0.1"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			t.Setenv("STORAGE_DRIVER", "memory")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := ParseConfig()
			require.Error(t, err)
		})
	}
}
