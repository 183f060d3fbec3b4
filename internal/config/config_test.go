package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  addr: ":8000"
mpesa:
  consumer_key: key
  consumer_secret: secret
  short_code: "174379"
  pass_key: pass
  callback_url: https://example.com/api/v1/mpesa/callback
  initiator_name: testapi
  security_credential: c2VjcmV0
  result_url: https://example.com/api/v1/mpesa/b2c/result
  timeout_url: https://example.com/api/v1/mpesa/b2c/timeout
  min_payout: 10
ledger:
  ws_endpoints: ["wss://ledger.example/ws"]
  pool_address: 5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY
tokens:
  - symbol: pas
    decimals: 10
    rate: "0.15"
    min_balance: "1"
  - symbol: USDT
    decimals: 6
    asset_id: 1984
    rate: "0.0074"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "PAS", cfg.Tokens[0].Symbol)
	assert.Equal(t, "0", cfg.Tokens[1].MinBalance)
	assert.Equal(t, int64(15), cfg.Worker.PollIntervalSeconds)
	assert.Equal(t, 8, cfg.Worker.PollMaxAttempts)
	assert.Equal(t, "174379", cfg.Mpesa.B2CShortCode)
	assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.Mpesa.BaseURL)
	assert.Equal(t, AppModeProduction, cfg.App.Mode)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("LEDGER_WS_ENDPOINTS", "wss://a/ws, wss://b/ws")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Len(t, cfg.Ledger.WSEndpoints, 2)
}

func TestParseRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens string
	}{
		{name: "duplicate", tokens: "\n  - {symbol: PAS, decimals: 10, rate: \"0.1\"}\n  - {symbol: pas, decimals: 10, rate: \"0.2\"}"},
		{name: "zero rate", tokens: "\n  - {symbol: PAS, decimals: 10, rate: \"0\"}"},
		{name: "bad floor", tokens: "\n  - {symbol: PAS, decimals: 10, rate: \"1\", min_balance: \"-1\"}"},
	}

	base := `
server: {addr: ":8000"}
mpesa: {consumer_key: k, consumer_secret: s, short_code: "1", pass_key: p, callback_url: "http://cb",
  initiator_name: i, security_credential: c, result_url: "http://r", timeout_url: "http://t"}
ledger: {ws_endpoints: ["ws://x"], pool_address: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"}
tokens:`

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(base + test.tokens))
			assert.Error(t, err)
		})
	}
}

func TestParseRequiresMpesa(t *testing.T) {
	_, err := Parse([]byte(`server: {addr: ":8000"}`))
	assert.EqualError(t, err, "mpesa config is incomplete")
}

func TestParseRequiresB2C(t *testing.T) {
	for _, key := range []string{"initiator_name", "security_credential", "result_url", "timeout_url"} {
		t.Run(key, func(t *testing.T) {
			var kept []string
			for _, line := range strings.Split(sample, "\n") {
				if !strings.HasPrefix(strings.TrimSpace(line), key+":") {
					kept = append(kept, line)
				}
			}
			_, err := Parse([]byte(strings.Join(kept, "\n")))
			assert.EqualError(t, err, "mpesa b2c config is incomplete")
		})
	}
}
