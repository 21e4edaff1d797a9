package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimal = `
listen: " :6000 "
tls:
  allow_insecure: true
auth:
  jwt_secret: " s3cret "
storage:
  memory: true
custody: "0x00000000000000000000000000000000000000c0"
roles:
  staker: " 0x0000000000000000000000000000000000000051 "
  governance:
    - "0x0000000000000000000000000000000000000060"
    - " "
genesis:
  - address: "0x00000000000000000000000000000000000000a1"
    amount: "1000000"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)
	require.Equal(t, ":6000", cfg.ListenAddress)
	require.True(t, cfg.TLS.AllowInsecure)
	require.False(t, cfg.TLS.Enabled())
	require.Equal(t, "s3cret", cfg.Auth.ResolveSecret())
	require.Equal(t, []string{"0x0000000000000000000000000000000000000060"}, cfg.Roles.Governance)
	require.Equal(t, "0x0000000000000000000000000000000000000051", cfg.Roles.Staker)
	require.Equal(t, common.HexToAddress("0xc0"), cfg.CustodyAddress())
	require.Equal(t, 1.0, cfg.Telemetry.SampleRatio)

	amount, err := cfg.Genesis[0].Value()
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), amount.Int64())
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	t.Setenv("LENDINGD_TEST_SECRET", "from-env")
	path := writeConfig(t, `
tls:
  allow_insecure: true
auth:
  jwt_secret_env: LENDINGD_TEST_SECRET
storage:
  data_dir: /tmp/pool
custody: "0x00000000000000000000000000000000000000c0"
roles:
  staker: "0x0000000000000000000000000000000000000051"
  governance: ["0x0000000000000000000000000000000000000060"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultListen, cfg.ListenAddress)
	require.Equal(t, "from-env", cfg.Auth.ResolveSecret())
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"no secret": `
tls: {allow_insecure: true}
storage: {memory: true}
custody: "0x00000000000000000000000000000000000000c0"
roles: {staker: "0x0000000000000000000000000000000000000051", governance: ["0x0000000000000000000000000000000000000060"]}
`,
		"tls without cert": `
auth: {jwt_secret: x}
storage: {memory: true}
custody: "0x00000000000000000000000000000000000000c0"
roles: {staker: "0x0000000000000000000000000000000000000051", governance: ["0x0000000000000000000000000000000000000060"]}
`,
		"both storage backends": `
tls: {allow_insecure: true}
auth: {jwt_secret: x}
storage: {memory: true, data_dir: /tmp/x}
custody: "0x00000000000000000000000000000000000000c0"
roles: {staker: "0x0000000000000000000000000000000000000051", governance: ["0x0000000000000000000000000000000000000060"]}
`,
		"bad custody": `
tls: {allow_insecure: true}
auth: {jwt_secret: x}
storage: {memory: true}
custody: "vault"
roles: {staker: "0x0000000000000000000000000000000000000051", governance: ["0x0000000000000000000000000000000000000060"]}
`,
		"missing governance": `
tls: {allow_insecure: true}
auth: {jwt_secret: x}
storage: {memory: true}
custody: "0x00000000000000000000000000000000000000c0"
roles: {staker: "0x0000000000000000000000000000000000000051"}
`,
		"bad genesis amount": `
tls: {allow_insecure: true}
auth: {jwt_secret: x}
storage: {memory: true}
custody: "0x00000000000000000000000000000000000000c0"
roles: {staker: "0x0000000000000000000000000000000000000051", governance: ["0x0000000000000000000000000000000000000060"]}
genesis: [{address: "0x00000000000000000000000000000000000000a1", amount: "-5"}]
`,
		"bad trusted proxy": minimal + "\nrate_limit: {requests_per_minute: 60, trusted_proxies: [\"lb.internal\"]}\n",
		"unknown field":     minimal + "\nextra: true\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("LENDINGD_JWT_SECRET", "sample-secret")
	cfg, err := Load(filepath.Join("..", "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Environment)
	require.Equal(t, "sample-secret", cfg.Auth.ResolveSecret())
	require.False(t, cfg.TLS.Enabled())
	require.Len(t, cfg.Genesis, 2)
	require.InDelta(t, 0.1, cfg.Telemetry.SampleRatio, 1e-9)
	require.Equal(t, []string{"127.0.0.1"}, cfg.RateLimit.TrustedProxies)
}
