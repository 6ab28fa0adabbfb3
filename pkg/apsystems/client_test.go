package apsystems

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEMA struct {
	mu           sync.Mutex
	token        string
	refreshOK    bool
	logins       int
	refreshes    int
	lastQuery    map[string]string
	realtimeCode int
}

func (f *fakeEMA) write(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": "",
		"data":    data,
	})
}

func (f *fakeEMA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case pathLogin:
		_ = r.ParseForm()
		if r.PostForm.Get("username") != "user" || r.PostForm.Get("password") != "secret" {
			f.write(w, 1001, nil)
			return
		}
		f.logins++
		f.token = "access-login"
		f.write(w, CODE_SUCCESS, Session{AccessToken: f.token, RefreshToken: "refresh-1", UserId: "U1"})
		return
	case pathRefresh:
		f.refreshes++
		if !f.refreshOK {
			f.write(w, 1002, nil)
			return
		}
		f.token = "access-refreshed"
		f.write(w, CODE_SUCCESS, Session{AccessToken: f.token})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+f.token || f.token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}

	switch r.URL.Path {
	case pathInverters:
		f.write(w, CODE_SUCCESS, []Inverter{{InverterDevId: "D1", DeviceName: "Roof"}})
	case pathRealtime:
		if f.realtimeCode != CODE_SUCCESS {
			f.write(w, f.realtimeCode, nil)
			return
		}
		f.write(w, CODE_SUCCESS, InverterRealtime{Power: 450})
	case pathLifetime:
		f.write(w, CODE_SUCCESS, EnergyStatistic{TotalEnergy: 1234.5})
	case pathDaily:
		f.write(w, CODE_SUCCESS, EnergyStatistic{TotalEnergy: 2.75})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestServer(t *testing.T) (*fakeEMA, *Client) {
	ema := &fakeEMA{}
	srv := httptest.NewServer(ema)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "user", "secret", 2*time.Second, zap.NewNop())
	return ema, client
}

func TestLoginAndQueries(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	_, client := newTestServer(t)
	ctx := context.Background()

	require.NoError(client.Login(ctx))

	inverters, err := client.ListInverters(ctx)
	require.NoError(err)
	assert.Equal([]Inverter{{InverterDevId: "D1", DeviceName: "Roof"}}, inverters)

	rt, err := client.GetInverterRealtime(ctx, "D1")
	require.NoError(err)
	assert.Equal(450.0, rt.Power)

	lt, err := client.GetLifetimeEnergy(ctx, "D1")
	require.NoError(err)
	assert.Equal(1234.5, lt.TotalEnergy)
}

func TestDailyEnergyQueryParams(t *testing.T) {

	require := require.New(t)

	ema, client := newTestServer(t)
	ctx := context.Background()
	require.NoError(client.Login(ctx))

	st, err := client.GetDailyEnergy(ctx, "D1", 2026, "03", "07")
	require.NoError(err)
	require.Equal(2.75, st.TotalEnergy)

	ema.mu.Lock()
	defer ema.mu.Unlock()
	require.Equal(map[string]string{
		"inverter_dev_id": "D1",
		"year":            "2026",
		"month":           "03",
		"day":             "07",
	}, ema.lastQuery)
}

func TestUnauthorizedIsSessionExpired(t *testing.T) {

	_, client := newTestServer(t)

	// no login, no token
	_, err := client.GetInverterRealtime(context.Background(), "D1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestErrorCodes(t *testing.T) {

	require := require.New(t)

	ema, client := newTestServer(t)
	ctx := context.Background()
	require.NoError(client.Login(ctx))

	ema.mu.Lock()
	ema.realtimeCode = CODE_TOKEN_EXPIRED
	ema.mu.Unlock()
	_, err := client.GetInverterRealtime(ctx, "D1")
	require.ErrorIs(err, ErrSessionExpired)

	ema.mu.Lock()
	ema.realtimeCode = CODE_DEVICE_OFFLINE
	ema.mu.Unlock()
	_, err = client.GetInverterRealtime(ctx, "D1")
	require.ErrorIs(err, ErrDeviceOffline)

	ema.mu.Lock()
	ema.realtimeCode = 4711
	ema.mu.Unlock()
	_, err = client.GetInverterRealtime(ctx, "D1")
	var apiErr *APIError
	require.ErrorAs(err, &apiErr)
	require.Equal(4711, apiErr.Code)
}

func TestRefreshSession(t *testing.T) {

	require := require.New(t)

	ema, client := newTestServer(t)
	ctx := context.Background()
	require.NoError(client.Login(ctx))

	ema.mu.Lock()
	ema.refreshOK = true
	ema.mu.Unlock()

	require.NoError(client.RefreshSession(ctx))
	require.Equal("access-refreshed", client.currentSession().AccessToken)
	require.Equal("refresh-1", client.currentSession().RefreshToken, "refresh token kept")
	require.Equal("U1", client.currentSession().UserId, "user id kept")

	_, err := client.GetLifetimeEnergy(ctx, "D1")
	require.NoError(err)
}

func TestRefreshFallsBackToLogin(t *testing.T) {

	require := require.New(t)

	ema, client := newTestServer(t)
	ctx := context.Background()
	require.NoError(client.Login(ctx))

	require.NoError(client.RefreshSession(ctx))

	ema.mu.Lock()
	require.Equal(1, ema.refreshes)
	require.Equal(2, ema.logins)
	ema.mu.Unlock()

	_, err := client.GetLifetimeEnergy(ctx, "D1")
	require.NoError(err)
}

func TestLoginRejected(t *testing.T) {

	ema := &fakeEMA{}
	srv := httptest.NewServer(ema)
	defer srv.Close()

	client := NewClient(srv.URL, "user", "wrong", time.Second, zap.NewNop())
	err := client.Login(context.Background())

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 1001, apiErr.Code)
}
