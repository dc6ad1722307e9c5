package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skenad.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
ListenAddress = ":9000"
DataDir = "/var/lib/skenad"
Environment = "production"
Treasury = "0x7e00000000000000000000000000000000000001"
Admin = "0xAd00000000000000000000000000000000000001"

[[pool]]
ID = "weth-usdc"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 8000

[[feed]]
Token = "0xA000000000000000000000000000000000000001"
Price = "200000000000"
FeedDecimals = 8
TokenDecimals = 18
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Len(t, cfg.Pools, 1)
	require.Equal(t, "weth-usdc", cfg.Pools[0].ID)
	require.Len(t, cfg.Feeds, 1)
	require.Equal(t, uint8(8), cfg.Feeds[0].FeedDecimals)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[[pool]]
ID = "p"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 7500
`))
	require.NoError(t, err)
	require.Equal(t, ":8544", cfg.ListenAddress)
	require.Equal(t, "./data", cfg.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no pools", `ListenAddress = ":1"`},
		{"missing pool id", `
[[pool]]
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 8000
`},
		{"duplicate pool id", `
[[pool]]
ID = "p"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 8000
[[pool]]
ID = "p"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 8000
`},
		{"bad collateral address", `
[[pool]]
ID = "p"
CollateralToken = "not-an-address"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 8000
`},
		{"ltv zero", `
[[pool]]
ID = "p"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 0
`},
		{"ltv full", `
[[pool]]
ID = "p"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 10000
`},
		{"bad feed price", `
[[pool]]
ID = "p"
CollateralToken = "0xA000000000000000000000000000000000000001"
BorrowToken = "0xB000000000000000000000000000000000000002"
LTVBps = 8000
[[feed]]
Token = "0xA000000000000000000000000000000000000001"
Price = "not-a-number"
FeedDecimals = 8
TokenDecimals = 18
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestPoolConfigLTVScaling(t *testing.T) {
	ltv := PoolConfig{LTVBps: 8000}.LTV()
	want, _ := new(big.Int).SetString("800000000000000000", 10)
	require.Equal(t, 0, ltv.Cmp(want))
}

func TestFeedConfigParsePrice(t *testing.T) {
	price := FeedConfig{Price: " 200000000000 "}.ParsePrice()
	require.Equal(t, 0, price.Cmp(big.NewInt(200_000_000_000)))
	require.Equal(t, 0, FeedConfig{Price: "garbage"}.ParsePrice().Sign())
}
