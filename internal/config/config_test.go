package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
db:
  dsn: "postgres://u:p@localhost:5432/fanatique"
wallet:
  xprv: "xprv-test"
chain:
  chain_id: 88888
  rpc_endpoints: ["https://rpc.chiliz.com"]
  contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Catalog.Source)
	assert.Equal(t, int32(18), cfg.Chain.TokenDecimals)
	assert.Equal(t, "0.01", cfg.Payments.TotalTolerance)
	assert.Equal(t, "0.001", cfg.Payments.AmountTolerance)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout())
	assert.Equal(t, 20*time.Second, cfg.WorkerInterval())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("RPC_ENDPOINTS", "https://a.example, https://b.example ,")
	t.Setenv("PAYMENT_CONFIRM_TIMEOUT_SECONDS", "90")
	t.Setenv("CHAIN_ID", "not-a-number")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Chain.RPCEndpoints)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout())
	assert.Equal(t, int64(88888), cfg.Chain.ChainID, "invalid env value keeps the file value")
}

func TestLoadRejectsIncompleteChainConfig(t *testing.T) {
	body := `
db:
  dsn: "postgres://u:p@localhost:5432/fanatique"
wallet:
  xprv: "xprv-test"
chain:
  chain_id: 88888
  rpc_endpoints: ["https://rpc.chiliz.com"]
  contract_address: "not-an-address"
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Chain.ContractAddress")
}

func TestLoadRequiresMySQLDSNForLegacyCatalog(t *testing.T) {
	body := minimalConfig + `
catalog:
  source: mysql
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MySQLDSN")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadTolerances(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
payments:
  total_tolerance: "0"
  amount_tolerance: "0.0005"
`))
	require.NoError(t, err)
	total, amount := cfg.Tolerances()
	assert.True(t, total.IsZero())
	assert.Equal(t, "0.0005", amount.String())

	_, err = Load(writeConfig(t, minimalConfig+`
payments:
  amount_tolerance: "-0.01"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AmountTolerance")

	_, err = Load(writeConfig(t, minimalConfig+`
payments:
  total_tolerance: "abc"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TotalTolerance")
}
