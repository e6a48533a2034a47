package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eAssetCUE = `
package assets

assets: "1": {
	name:         "TEST"
	description:  "Test shares"
	total_shares: 1000
	addresses: {
		limit_buy:     "TEST-limit-buy"
		limit_sell:    "TEST-limit-sell"
		market_buy:    "TEST-market-buy"
		market_sell:   "TEST-market-sell"
		clear_order:   "TEST-clear-order"
		transfer:      "TEST-transfer"
		pay:           "TEST-pay"
		create_vote:   "TEST-create-vote"
		vote:          "TEST-vote"
		state_control: "TEST-state-control"
		issuer:        "TEST-issuer"
	}
	holders: "holder": 1000
}
`

// Block 240001 resumes the exchange, creates asset 1 and resumes it.
// Block 240002 trades 4 shares at 20000.
const e2eFixture = `
previous_hash: 000000000000000e7ad69c72afc00dc4e05fc15ae3061c47d3591d07c09f2928
blocks:
  - height: 240001
    timestamp: 2013-06-01T00:10:00Z
    transactions:
      - hash: resume-exchange
        inputs: [exchange-open]
        outputs: [{address: exchange-state-control, amount: 1}]
      - hash: create-asset
        inputs: [exchange-open]
        outputs: [{address: exchange-create-asset, amount: 1}]
      - hash: resume-asset
        inputs: [exchange-open]
        outputs: [{address: TEST-state-control, amount: 1}]
  - height: 240002
    timestamp: 2013-06-01T00:20:00Z
    transactions:
      - hash: sell
        inputs: [holder]
        outputs: [{address: TEST-limit-sell, amount: 200010}]
      - hash: buy
        inputs: [alice]
        outputs: [{address: TEST-limit-buy, amount: 80004}]
`

// writeWorkspace lays out a config, asset dir and fixture in a temp dir and
// returns the config path.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	assetsDir := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(assetsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "test.cue"), []byte(e2eAssetCUE), 0o644))

	fixture := filepath.Join(dir, "blocks.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(e2eFixture), 0o644))

	cfg := `
store:
  driver: leveldb
  path: ` + filepath.Join(dir, "state") + `
exchange:
  genesis_height: 240000
  genesis_hash: 000000000000000e7ad69c72afc00dc4e05fc15ae3061c47d3591d07c09f2928
  state_control_address: exchange-state-control
  create_asset_address: exchange-create-asset
  open_exchange_address: exchange-open
  payment_log_address: exchange-payment-log
assets:
  dir: ` + assetsDir + `
chain:
  fixture: ` + fixture + `
  min_confirmations: 1
settlement:
  batch_size: 50
log:
  level: warn
`
	path := filepath.Join(dir, "openexchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// runCLI executes the root command and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCLI_ReplayEndToEnd(t *testing.T) {
	cfg := writeWorkspace(t)

	out, err := runCLI(t, "-c", cfg, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized at 240000")

	_, err = runCLI(t, "-c", cfg, "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = runCLI(t, "-c", cfg, "--format", "json", "process", "--until-tip")
	require.NoError(t, err)
	var resp struct {
		Status string        `json:"status"`
		Data   []ProcessStep `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "advanced", string(resp.Data[0].Result))
	assert.Equal(t, int64(240001), resp.Data[0].Height)
	assert.Equal(t, "advanced", string(resp.Data[1].Result))
	assert.Equal(t, int64(240002), resp.Data[1].Height)
	assert.Equal(t, "no_new_block", string(resp.Data[2].Result))

	out, err = runCLI(t, "-c", cfg, "process")
	require.NoError(t, err)
	assert.Equal(t, "no_new_block 240002 "+resp.Data[1].Hash+"\n", out)

	out, err = runCLI(t, "-c", cfg, "inspect")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "height 240002\n"), out)
	assert.Contains(t, out, "asset TEST running")
	assert.Contains(t, out, "description Test shares")

	dumpPath := filepath.Join(t.TempDir(), "dump.txt")
	_, err = runCLI(t, "-c", cfg, "inspect", "240001", "--out", dumpPath)
	require.NoError(t, err)
	dump, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(dump), "height 240001\n"))

	out, err = runCLI(t, "-c", cfg, "payments", "240002")
	require.NoError(t, err)
	assert.Contains(t, out, "settled true")
	assert.Contains(t, out, "holder 280010")
	assert.Contains(t, out, "alice 4")
	assert.NotContains(t, out, "unsettled")

	out, err = runCLI(t, "-c", cfg, "delete-chained", "240001")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 chained states up to 240001")

	_, err = runCLI(t, "-c", cfg, "inspect", "240000")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_ProcessBeforeInit(t *testing.T) {
	cfg := writeWorkspace(t)

	out, err := runCLI(t, "-c", cfg, "--format", "json", "process")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "COMMAND_ERROR", resp.Error.Code)
}

func TestCLI_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "init")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestCLI_ResolveNeedsOneFlag(t *testing.T) {
	cfg := writeWorkspace(t)

	_, err := runCLI(t, "-c", cfg, "payments", "resolve", "240001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of --sent or --unsent")

	_, err = runCLI(t, "-c", cfg, "payments", "resolve", "240001", "--sent", "abc", "--unsent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_BadHeight(t *testing.T) {
	_, err := runCLI(t, "inspect", "tip")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid height "tip"`)
}

func TestCLI_AssetsValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.cue"), []byte(e2eAssetCUE), 0o644))

	out, err := runCLI(t, "--format", "json", "assets", "validate", dir)
	require.NoError(t, err)

	var resp struct {
		Status string               `json:"status"`
		Data   AssetsValidateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Templates)
	assert.Equal(t, map[int64]string{1: "TEST"}, resp.Data.Names)
}

func TestCLI_AssetsValidateRejects(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(e2eAssetCUE, `"holder": 1000`, `"holder": 999`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.cue"), []byte(bad), 0o644))

	out, err := runCLI(t, "assets", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [")

	_, err = runCLI(t, "assets", "validate", "--network", "regtest", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
