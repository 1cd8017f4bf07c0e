package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected  *Config
		name      string
		args      []string
		expectErr bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-g", ":9091", "-m", "memory", "-d", "db", "-s", "secret",
			"-t", "60", "-o", "5", "-r", "redis://localhost:6379/0", "-l", "debug",
		},
			expected: &Config{
				HTTPAddr:    "127.0.0.1:9090",
				GRPCAddr:    ":9091",
				StoreDriver: "memory",
				DatabaseDSN: "db",
				SecretKey:   "secret",
				TokenTTL:    time.Hour,
				OTPTTL:      5 * time.Minute,
				RedisURL:    "redis://localhost:6379/0",
				LogLevel:    "debug",
			}},
		{name: "unknown flags are ignored", args: []string{"cmd", "-x", "1", "-a", ":1"},
			expected: &Config{HTTPAddr: ":1"}},
		{name: "bad minutes", args: []string{"cmd", "-t", "soon"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}
			err := parseFlags(config)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
