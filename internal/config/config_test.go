package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fundscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rpc: http://localhost:8545\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, "FND", cfg.PlatformTokenSymbol)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 32, cfg.TotalsCacheShards)
	assert.Equal(t, uint64(2000), cfg.Watch.BatchSize)
	assert.True(t, cfg.Watch.CheckpointEnabled)
	assert.Equal(t, 15*time.Second, cfg.Watch.PollInterval)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
rpc: http://file
tokens:
  - "0xaa:FND:18"
  - "0xbb:DAI:18"
from: 100
totals-cache-ttl: 5m
`)
	t.Setenv("FUNDSCOPE_PG_DSN", "postgres://env")
	t.Setenv("FUNDSCOPE_RPC", "http://env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Uint64("to", 0, "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag", "--to", "200"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "http://flag", cfg.RPCURL)
	assert.Equal(t, "postgres://env", cfg.PGDSN)
	assert.Equal(t, []string{"0xaa:FND:18", "0xbb:DAI:18"}, cfg.Tokens)
	assert.Equal(t, uint64(100), cfg.Watch.FromBlock)
	assert.Equal(t, uint64(200), cfg.Watch.ToBlock)
	assert.Equal(t, 5*time.Minute, cfg.TotalsCacheTTL)
}

func TestLoadCommaSeparatedTokens(t *testing.T) {
	t.Setenv("FUNDSCOPE_TOKENS", "0xaa:FND:18, ,0xbb:DAI:18")
	cfg, err := Load(writeConfig(t, "{}"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaa:FND:18", "0xbb:DAI:18"}, cfg.Tokens)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestRequireChain(t *testing.T) {
	cfg := Config{
		RPCURL:          "http://localhost:8545",
		FundRepository:  "0x00000000000000000000000000000000000000f1",
		ClaimRepository: "0x00000000000000000000000000000000000000f2",
	}
	assert.NoError(t, cfg.RequireChain())

	bad := cfg
	bad.ClaimRepository = "not-an-address"
	assert.ErrorContains(t, bad.RequireChain(), "claim-repository")

	bad = cfg
	bad.RPCURL = ""
	assert.Error(t, bad.RequireChain())
}
