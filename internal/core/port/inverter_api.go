package port

import (
	"context"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/pkg/apsystems"
)

// InverterAPI is the EMA cloud surface consumed by the bridge.
type InverterAPI interface {
	Login(ctx context.Context) error
	RefreshSession(ctx context.Context) error
	ListInverters(ctx context.Context) ([]apsystems.Inverter, error)
	GetInverterRealtime(ctx context.Context, inverterDevId string) (*apsystems.InverterRealtime, error)
	GetLifetimeEnergy(ctx context.Context, inverterDevId string) (*apsystems.EnergyStatistic, error)
	GetDailyEnergy(ctx context.Context, inverterDevId string, year int, month, day string) (*apsystems.EnergyStatistic, error)
}

// RecoveryPolicy bounds the session expiry recovery of a poll.
// MaxAttempts counts the first call. Delay is waited before attempt+1.
type RecoveryPolicy interface {
	MaxAttempts() int
	Delay(attempt int) time.Duration
}

type MetricPoller interface {
	Poll(ctx context.Context, inverter domain.Inverter, kind domain.MetricKind) (*domain.Reading, error)
}

// ensure interface compliance
var _ InverterAPI = (*apsystems.Client)(nil)
var _ InverterAPI = (*apsystems.TestClient)(nil)
