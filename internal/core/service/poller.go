package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/port"
	"github.com/berfenger/apsystems2mqtt/pkg/apsystems"

	"go.uber.org/zap"
)

var ErrUnknownMetric = errors.New("unknown metric")

// DefaultPoller fetches one fresh reading per call and hides session expiry
// from the caller: on expiry it waits, refreshes the session and repeats the
// same call, as many times as the policy allows. Any other failure, and the
// failure of the last attempt, is returned to the caller.
type DefaultPoller struct {
	API    port.InverterAPI
	Policy port.RecoveryPolicy
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

type fetchFn func(ctx context.Context) (float64, error)

func NewPoller(api port.InverterAPI, policy port.RecoveryPolicy, logger *zap.Logger) *DefaultPoller {
	return &DefaultPoller{
		API:    api,
		Policy: policy,
		Now:    time.Now,
		Sleep:  sleepContext,
		Logger: logger,
	}
}

func (p *DefaultPoller) Poll(ctx context.Context, inverter domain.Inverter, kind domain.MetricKind) (*domain.Reading, error) {
	// the date is taken once, a retry asks for the same day
	now := p.now()
	fetch, err := p.fetcher(inverter, kind, now)
	if err != nil {
		return nil, err
	}

	maxAttempts := p.policy().MaxAttempts()
	for attempt := 1; ; attempt++ {
		value, err := fetch(ctx)
		switch {
		case err == nil:
			return &domain.Reading{Kind: kind, Value: value, At: now}, nil
		case attempt == 1 && kind == domain.METRIC_POWER_NOW && errors.Is(err, apsystems.ErrDeviceOffline):
			p.logger().Debug("poller: inverter offline, power is 0", zap.String("inverter", inverter.Id))
			return &domain.Reading{Kind: kind, Value: 0, Offline: true, At: now}, nil
		case attempt < maxAttempts && errors.Is(err, apsystems.ErrSessionExpired):
			delay := p.policy().Delay(attempt)
			p.logger().Info("poller: session expired, refreshing",
				zap.String("inverter", inverter.Id), zap.String("metric", string(kind)),
				zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if err := p.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("poll %s of inverter %s: %w", kind, inverter.Id, err)
			}
			if err := p.API.RefreshSession(ctx); err != nil {
				return nil, fmt.Errorf("refresh session: %w", err)
			}
		default:
			return nil, fmt.Errorf("poll %s of inverter %s: %w", kind, inverter.Id, err)
		}
	}
}

func (p *DefaultPoller) fetcher(inverter domain.Inverter, kind domain.MetricKind, now time.Time) (fetchFn, error) {
	switch kind {
	case domain.METRIC_POWER_NOW:
		return func(ctx context.Context) (float64, error) {
			rt, err := p.API.GetInverterRealtime(ctx, inverter.Id)
			if err != nil {
				return 0, err
			}
			return rt.Power, nil
		}, nil
	case domain.METRIC_LIFETIME_ENERGY:
		return func(ctx context.Context) (float64, error) {
			st, err := p.API.GetLifetimeEnergy(ctx, inverter.Id)
			if err != nil {
				return 0, err
			}
			return st.TotalEnergy, nil
		}, nil
	case domain.METRIC_TODAY_ENERGY:
		year, month, day := now.Year(), now.Format("01"), now.Format("02")
		return func(ctx context.Context) (float64, error) {
			st, err := p.API.GetDailyEnergy(ctx, inverter.Id, year, month, day)
			if err != nil {
				return 0, err
			}
			return st.TotalEnergy, nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, kind)
}

func (p *DefaultPoller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *DefaultPoller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (p *DefaultPoller) policy() port.RecoveryPolicy {
	if p.Policy != nil {
		return p.Policy
	}
	return DefaultRecoveryPolicy()
}

func (p *DefaultPoller) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ensure interface compliance
var _ port.MetricPoller = (*DefaultPoller)(nil)
