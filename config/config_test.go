package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
[log]
level = "debug"

[db]
driver = "memory"

[eip712]
name = "EasyAuction"
version = "1"
chain_id = 11155111
verifying_contract = "0x00000000000000000000000000000000000a0c71"
`

func TestUnmarshalConfig_Defaults(t *testing.T) {
	c, err := UnmarshalConfig(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Api.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "memory", c.DB.Driver)
	assert.Equal(t, int64(11155111), c.EIP712.ChainID)
	assert.Equal(t, SettlementModeOffChain, c.Auction.SettlementMode)
	assert.Equal(t, 10*time.Minute, c.Auction.StuckTimeout())
	assert.Equal(t, time.Minute, c.Auction.WatchdogEvery())
	assert.Equal(t, 40, c.Auction.FinalityPollAttempts)
	require.NotNil(t, c.Monitor)
	assert.True(t, c.Monitor.MetricsEnable)
}

func TestUnmarshalConfig_EnvOverride(t *testing.T) {
	t.Setenv("EASYAUCTION_AUCTION_PLATFORM_FEE_BPS", "300")
	c, err := UnmarshalConfig(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, int64(300), c.Auction.PlatformFeeBps)
}

func TestUnmarshalConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing domain", "[log]\n[db]\ndriver = \"memory\"\n"},
		{"onchain without endpoint", minimal + "\n[auction]\nsettlement_mode = \"onchain\"\n"},
		{"unknown mode", minimal + "\n[auction]\nsettlement_mode = \"carrier-pigeon\"\n"},
		{"fee out of range", minimal + "\n[auction]\nplatform_fee_bps = 20000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalConfig_SampleFile(t *testing.T) {
	c, err := UnmarshalConfig("config.toml")
	require.NoError(t, err)
	assert.Equal(t, int64(250), c.Auction.PlatformFeeBps)
	assert.Equal(t, "mysql", c.DB.Driver)
}
