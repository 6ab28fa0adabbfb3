package apsystems

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CODE_SUCCESS        = 0
	CODE_TOKEN_EXPIRED  = 2005
	CODE_DEVICE_OFFLINE = 3001
)

var (
	// ErrSessionExpired is returned when the access token is no longer accepted.
	ErrSessionExpired = errors.New("apsystems: session expired")
	// ErrDeviceOffline is returned by realtime queries of inverters not reporting to EMA.
	ErrDeviceOffline = errors.New("apsystems: device offline")
)

// APIError is any other non successful answer of the EMA API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apsystems: api error code %d", e.Code)
	}
	return fmt.Sprintf("apsystems: api error code %d: %s", e.Code, e.Message)
}

type Inverter struct {
	InverterDevId string `json:"inverter_dev_id"`
	DeviceName    string `json:"device_name"`
}

type InverterRealtime struct {
	Power float64 `json:"power"`
}

type EnergyStatistic struct {
	TotalEnergy float64 `json:"total_energy"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserId       string `json:"user_id"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
