package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammengine/internal/amm"
)

type envelope struct {
	Result json.RawMessage `json:"Result"`
	Error  *string         `json:"Error"`
	Code   string          `json:"Code"`
}

func newTestServer(t *testing.T) (*Server, *amm.Engine) {
	t.Helper()
	reg := prometheus.NewRegistry()
	engine := amm.New(amm.Options{
		Admins:  []string{"admin"},
		Metrics: amm.NewMetrics(reg, "amm"),
	})
	return NewServer(engine, reg, nil), engine
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" && bytes.HasPrefix(rec.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func createPool(t *testing.T, s *Server) string {
	t.Helper()
	code, env := do(t, s, http.MethodPost, "/pools", map[string]string{
		"provider": "lp", "token_a": "STX", "token_b": "USDA",
		"reserve_a": "100000000", "reserve_b": "50000000",
	})
	require.Equal(t, http.StatusOK, code, "create pool: %s", string(env.Result))
	var res struct {
		PoolID string `json:"pool_id"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &res))
	return res.PoolID
}

func TestCreatePoolAndSwap(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPool(t, s)
	assert.Equal(t, amm.PoolID("STX", "USDA"), id)

	code, env := do(t, s, http.MethodPost, "/pools/"+id+"/swap", map[string]string{
		"trader": "alice", "token_in": "STX", "amount_in": "1000000", "min_amount_out": "493579",
	})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"amount_out":"493579"}`, string(env.Result))

	code, env = do(t, s, http.MethodGet, "/pools/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var pool poolResult
	require.NoError(t, json.Unmarshal(env.Result, &pool))
	assert.Equal(t, "100999999", pool.ReserveA)
	assert.Equal(t, "49506421", pool.ReserveB)
	assert.False(t, pool.Paused)
	assert.NotEmpty(t, pool.SpotPrice)
}

func TestErrorStatusMapping(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPool(t, s)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"duplicate pool", http.MethodPost, "/pools", map[string]string{
			"provider": "lp", "token_a": "USDA", "token_b": "STX", "reserve_a": "5000000", "reserve_b": "5000000",
		}, http.StatusConflict, "pool_exists"},
		{"same token", http.MethodPost, "/pools", map[string]string{
			"provider": "lp", "token_a": "STX", "token_b": "STX", "reserve_a": "5000000", "reserve_b": "5000000",
		}, http.StatusBadRequest, "invalid_asset"},
		{"malformed amount", http.MethodPost, "/pools/" + id + "/swap", map[string]string{
			"trader": "alice", "token_in": "STX", "amount_in": "1e6",
		}, http.StatusBadRequest, "bad_request"},
		{"missing field", http.MethodPost, "/pools/" + id + "/swap", map[string]string{
			"token_in": "STX", "amount_in": "10",
		}, http.StatusBadRequest, "bad_request"},
		{"slippage", http.MethodPost, "/pools/" + id + "/swap", map[string]string{
			"trader": "alice", "token_in": "STX", "amount_in": "1000000", "min_amount_out": "9999999",
		}, http.StatusUnprocessableEntity, "slippage_exceeded"},
		{"unknown pool", http.MethodGet, "/pools/0xdead", nil, http.StatusNotFound, "pool_not_found"},
		{"no route", http.MethodGet, "/route?token_in=STX&token_out=DIKO&amount_in=10", nil, http.StatusNotFound, "no_route_found"},
		{"unauthorized pause", http.MethodPost, "/pools/" + id + "/pause", map[string]string{"admin": "mallory"}, http.StatusForbidden, "unauthorized"},
		{"insufficient shares", http.MethodPost, "/pools/" + id + "/liquidity/remove", map[string]string{
			"provider": "bob", "shares": "10",
		}, http.StatusUnprocessableEntity, "insufficient_shares"},
		{"program missing", http.MethodPost, "/pools/" + id + "/stake", map[string]string{
			"user": "lp", "amount": "10",
		}, http.StatusNotFound, "program_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := do(t, s, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, code)
			assert.Equal(t, tc.code, env.Code)
			require.NotNil(t, env.Error)
			assert.NotEmpty(t, *env.Error)
		})
	}
}

func TestPauseBlocksSwap(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPool(t, s)

	code, _ := do(t, s, http.MethodPost, "/pools/"+id+"/pause", map[string]string{"admin": "admin"})
	require.Equal(t, http.StatusOK, code)

	code, env := do(t, s, http.MethodPost, "/pools/"+id+"/swap", map[string]string{
		"trader": "alice", "token_in": "STX", "amount_in": "1000",
	})
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, "pool_paused", env.Code)

	code, _ = do(t, s, http.MethodPost, "/pools/"+id+"/unpause", map[string]string{"admin": "admin"})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, s, http.MethodPost, "/pools/"+id+"/swap", map[string]string{
		"trader": "alice", "token_in": "STX", "amount_in": "1000",
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestLiquidityAndMiningFlow(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPool(t, s)

	code, env := do(t, s, http.MethodPost, "/pools/"+id+"/liquidity", map[string]string{
		"provider": "bob", "amount_a": "1000000", "amount_b": "500000",
	})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"shares_minted":"707106"}`, string(env.Result))

	code, env = do(t, s, http.MethodGet, "/pools/"+id+"/positions/bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), `"shares":"707106"`)

	code, _ = do(t, s, http.MethodPost, "/pools/"+id+"/program", map[string]string{
		"admin": "admin", "reward_token": "DIKO", "reward_rate": "100", "duration": "1000s",
	})
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, s, http.MethodPost, "/pools/"+id+"/stake", map[string]string{"user": "bob", "amount": "1000"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), `"amount":"1000"`)

	code, _ = do(t, s, http.MethodGet, "/pools/"+id+"/pending/bob", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, s, http.MethodPost, "/pools/"+id+"/harvest", map[string]string{"user": "bob"})
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, s, http.MethodPost, "/pools/"+id+"/unstake", map[string]string{"user": "bob", "amount": "1001"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "insufficient_stake", env.Code)

	code, env = do(t, s, http.MethodPost, "/pools/"+id+"/liquidity/remove", map[string]string{"provider": "bob", "shares": "707106"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), "amount_a")
}

func TestPricesAndRoute(t *testing.T) {
	s, _ := newTestServer(t)
	createPool(t, s)

	code, env := do(t, s, http.MethodGet, "/prices/STX", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null", string(env.Result), "unknown price is absent, not an error")

	code, env = do(t, s, http.MethodPut, "/prices/STX", map[string]string{"price": "0.5"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), `"price":"0.5"`)
	assert.Contains(t, string(env.Result), `"price_raw":"500000000000000000"`)
	code, _ = do(t, s, http.MethodPut, "/prices/USDA", map[string]string{"price": "1"})
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, s, http.MethodPut, "/prices/STX", map[string]string{"price": "-1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_amount", env.Code)

	code, env = do(t, s, http.MethodGet, "/route?token_in=STX&token_out=USDA&amount_in=1000000", nil)
	require.Equal(t, http.StatusOK, code)
	var route struct {
		PoolIDs         []string `json:"pool_ids"`
		EstimatedOutput string   `json:"estimated_output"`
		OracleOutput    string   `json:"oracle_output"`
		DeviationBps    int64    `json:"deviation_bps"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &route))
	assert.Len(t, route.PoolIDs, 1)
	assert.Equal(t, "493579", route.EstimatedOutput)
	assert.Equal(t, "500000", route.OracleOutput)
	assert.Equal(t, int64(-128), route.DeviationBps)
}

func TestRoutedSwapAndFees(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPool(t, s)

	code, env := do(t, s, http.MethodPost, "/swap", map[string]string{
		"trader": "alice", "token_in": "STX", "token_out": "USDA", "amount_in": "1000000",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), `"amount_out":"493579"`)

	code, env = do(t, s, http.MethodGet, "/fees", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), `"amount":"1"`)

	code, env = do(t, s, http.MethodPost, "/pools/"+id+"/fees/withdraw", map[string]string{
		"admin": "admin", "token": "STX", "recipient": "treasury",
	})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"amount":"1"}`, string(env.Result))

	code, env = do(t, s, http.MethodPost, "/pools/"+id+"/fees/withdraw", map[string]string{
		"admin": "admin", "token": "STX", "recipient": "",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_recipient", env.Code)

	code, env = do(t, s, http.MethodGet, "/pools/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Result), `"kind":"fees_withdrawn"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	createPool(t, s)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "amm_pools 1")
}

func TestQuoteLeavesPoolUntouched(t *testing.T) {
	s, _ := newTestServer(t)
	id := createPool(t, s)

	code, env := do(t, s, http.MethodGet, "/pools/"+id+"/quote?token_in=STX&amount_in=1000000", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"amount_out":"493579"}`, string(env.Result))

	code, env = do(t, s, http.MethodGet, "/pools/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var pool poolResult
	require.NoError(t, json.Unmarshal(env.Result, &pool))
	assert.Equal(t, "100000000", pool.ReserveA)

	code, env = do(t, s, http.MethodGet, "/pools/"+id+"/quote?token_in=DIKO&amount_in=10", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_asset", env.Code)
	code, env = do(t, s, http.MethodGet, "/pools/0xdead/quote?token_in=STX&amount_in=10", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "pool_not_found", env.Code)
}

func TestAddAdmin(t *testing.T) {
	s, engine := newTestServer(t)
	id := createPool(t, s)

	code, env := do(t, s, http.MethodPost, "/admins", map[string]string{"caller": "mallory", "admin": "mallory"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "unauthorized", env.Code)
	code, env = do(t, s, http.MethodPost, "/admins", map[string]string{"caller": "admin"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", env.Code)

	code, _ = do(t, s, http.MethodPost, "/admins", map[string]string{"caller": "admin", "admin": "carol"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, engine.Emergency.IsAdmin("carol"))

	code, _ = do(t, s, http.MethodPost, "/pools/"+id+"/pause", map[string]string{"admin": "carol"})
	assert.Equal(t, http.StatusOK, code)
}
