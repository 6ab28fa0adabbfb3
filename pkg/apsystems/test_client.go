package apsystems

import (
	"context"
	"sync"
)

const (
	TEST_POWER_WATT   = 450
	TEST_LIFETIME_KWH = 1234.5
	TEST_TODAY_KWH    = 3.25
)

type DailyRequest struct {
	InverterDevId string
	Year          int
	Month         string
	Day           string
}

// TestClient is a scripted in-memory EMA API. Each *Fn hook receives the
// zero based call index for that operation. Nil hooks answer with the TEST_*
// values.
type TestClient struct {
	Inverters []Inverter

	ListFn     func() ([]Inverter, error)
	LoginFn    func(call int) error
	RefreshFn  func(call int) error
	RealtimeFn func(inverterDevId string, call int) (*InverterRealtime, error)
	LifetimeFn func(inverterDevId string, call int) (*EnergyStatistic, error)
	DailyFn    func(req DailyRequest, call int) (*EnergyStatistic, error)

	mu            sync.Mutex
	logins        int
	refreshes     int
	realtimeCalls int
	lifetimeCalls int
	dailyCalls    []DailyRequest
}

func NewTestClient() *TestClient {
	return &TestClient{
		Inverters: []Inverter{
			{InverterDevId: "D1", DeviceName: "Roof"},
			{InverterDevId: "D2", DeviceName: "Garage"},
		},
	}
}

func (c *TestClient) Login(ctx context.Context) error {
	c.mu.Lock()
	call := c.logins
	c.logins++
	c.mu.Unlock()
	if c.LoginFn != nil {
		return c.LoginFn(call)
	}
	return nil
}

func (c *TestClient) RefreshSession(ctx context.Context) error {
	c.mu.Lock()
	call := c.refreshes
	c.refreshes++
	c.mu.Unlock()
	if c.RefreshFn != nil {
		return c.RefreshFn(call)
	}
	return nil
}

func (c *TestClient) ListInverters(ctx context.Context) ([]Inverter, error) {
	if c.ListFn != nil {
		return c.ListFn()
	}
	return c.Inverters, nil
}

func (c *TestClient) GetInverterRealtime(ctx context.Context, inverterDevId string) (*InverterRealtime, error) {
	c.mu.Lock()
	call := c.realtimeCalls
	c.realtimeCalls++
	c.mu.Unlock()
	if c.RealtimeFn != nil {
		return c.RealtimeFn(inverterDevId, call)
	}
	return &InverterRealtime{Power: TEST_POWER_WATT}, nil
}

func (c *TestClient) GetLifetimeEnergy(ctx context.Context, inverterDevId string) (*EnergyStatistic, error) {
	c.mu.Lock()
	call := c.lifetimeCalls
	c.lifetimeCalls++
	c.mu.Unlock()
	if c.LifetimeFn != nil {
		return c.LifetimeFn(inverterDevId, call)
	}
	return &EnergyStatistic{TotalEnergy: TEST_LIFETIME_KWH}, nil
}

func (c *TestClient) GetDailyEnergy(ctx context.Context, inverterDevId string, year int, month, day string) (*EnergyStatistic, error) {
	req := DailyRequest{InverterDevId: inverterDevId, Year: year, Month: month, Day: day}
	c.mu.Lock()
	call := len(c.dailyCalls)
	c.dailyCalls = append(c.dailyCalls, req)
	c.mu.Unlock()
	if c.DailyFn != nil {
		return c.DailyFn(req, call)
	}
	return &EnergyStatistic{TotalEnergy: TEST_TODAY_KWH}, nil
}

func (c *TestClient) Logins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins
}

func (c *TestClient) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

func (c *TestClient) RealtimeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.realtimeCalls
}

func (c *TestClient) LifetimeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifetimeCalls
}

func (c *TestClient) DailyCalls() []DailyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DailyRequest(nil), c.dailyCalls...)
}
