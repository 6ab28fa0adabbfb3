package apsystems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DEFAULT_BASE_URL = "https://api.apsystemsema.com:9282"

	pathLogin     = "/api/token/generateToken/user/login"
	pathRefresh   = "/api/token/refreshToken"
	pathInverters = "/aps-api-web/api/v2/data/device/inverters"
	pathRealtime  = "/aps-api-web/api/v2/data/device/inverter/realtime"
	pathLifetime  = "/aps-api-web/api/v2/data/device/inverter/lifetime"
	pathDaily     = "/aps-api-web/api/v2/data/device/inverter/daily"
)

// Client talks to the APsystems EMA cloud. The session is held by the client
// and replaced in place by Login and RefreshSession.
type Client struct {
	http     *resty.Client
	username string
	password string

	mu      sync.Mutex
	session Session

	refreshGroup singleflight.Group
	logger       *zap.Logger
}

func NewClient(baseURL, username, password string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DEFAULT_BASE_URL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:     httpClient,
		username: username,
		password: password,
		logger:   logger.With(zap.String("component", "apsystems")),
	}
}

// Login authenticates with username and password and stores a new session.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" {
		return errors.New("apsystems: missing username")
	}
	if c.password == "" {
		return errors.New("apsystems: missing password")
	}

	var session Session
	err := c.post(ctx, pathLogin, map[string]string{
		"username": c.username,
		"password": c.password,
	}, &session)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.setSession(session)
	c.logger.Debug("apsystems login success", zap.String("user_id", session.UserId))
	return nil
}

// RefreshSession renews the access token. Concurrent callers share a single
// refresh round-trip. A rejected refresh token falls back to a full login.
func (c *Client) RefreshSession(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refreshToken := c.currentSession().RefreshToken
		if refreshToken == "" {
			return nil, c.Login(ctx)
		}
		var session Session
		err := c.post(ctx, pathRefresh, map[string]string{
			"refresh_token": refreshToken,
		}, &session)
		if err != nil {
			c.logger.Info("apsystems token refresh rejected, logging in again", zap.Error(err))
			return nil, c.Login(ctx)
		}
		if session.RefreshToken == "" {
			session.RefreshToken = refreshToken
		}
		if session.UserId == "" {
			session.UserId = c.currentSession().UserId
		}
		c.setSession(session)
		c.logger.Debug("apsystems token refreshed")
		return nil, nil
	})
	return err
}

func (c *Client) ListInverters(ctx context.Context) ([]Inverter, error) {
	var inverters []Inverter
	err := c.get(ctx, pathInverters, map[string]string{
		"user_id": c.currentSession().UserId,
	}, &inverters)
	if err != nil {
		return nil, err
	}
	return inverters, nil
}

func (c *Client) GetInverterRealtime(ctx context.Context, inverterDevId string) (*InverterRealtime, error) {
	var res InverterRealtime
	err := c.get(ctx, pathRealtime, map[string]string{
		"inverter_dev_id": inverterDevId,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetLifetimeEnergy(ctx context.Context, inverterDevId string) (*EnergyStatistic, error) {
	var res EnergyStatistic
	err := c.get(ctx, pathLifetime, map[string]string{
		"inverter_dev_id": inverterDevId,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetDailyEnergy returns the energy produced on the given day. month and day
// are two digit strings ("01".."12", "01".."31").
func (c *Client) GetDailyEnergy(ctx context.Context, inverterDevId string, year int, month, day string) (*EnergyStatistic, error) {
	var res EnergyStatistic
	err := c.get(ctx, pathDaily, map[string]string{
		"inverter_dev_id": inverterDevId,
		"year":            strconv.Itoa(year),
		"month":           month,
		"day":             day,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) currentSession() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, dest any) error {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.currentSession().AccessToken).
		SetQueryParams(params)
	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	return c.decode(resp, dest)
}

func (c *Client) post(ctx context.Context, path string, form map[string]string, dest any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(path)
	if err != nil {
		return err
	}
	return c.decode(resp, dest)
}

func (c *Client) decode(resp *resty.Response, dest any) error {
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	if resp.IsError() {
		return &APIError{Code: resp.StatusCode(), Message: resp.Status()}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		c.logger.Error("failed to decode apsystems response", zap.Error(err), zap.ByteString("body", resp.Body()))
		return fmt.Errorf("failed to decode apsystems response: %w", err)
	}

	switch env.Code {
	case CODE_SUCCESS:
	case CODE_TOKEN_EXPIRED:
		return ErrSessionExpired
	case CODE_DEVICE_OFFLINE:
		return ErrDeviceOffline
	default:
		return &APIError{Code: env.Code, Message: env.Message}
	}

	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to decode apsystems data: %w", err)
	}
	return nil
}
