package actor

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/apsystems2mqtt/internal/adapter/actor"
	"github.com/berfenger/apsystems2mqtt/internal/config"
	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/service"
	"github.com/berfenger/apsystems2mqtt/internal/mqtt"
	"github.com/berfenger/apsystems2mqtt/internal/util"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"
	"github.com/berfenger/apsystems2mqtt/pkg/apsystems"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type masterFixture struct {
	as   *actor.ActorSystem
	pid  *actor.PID
	api  *apsystems.TestClient
	mu   sync.Mutex
	mqtt *adactor.MQTTActor
}

func (f *masterFixture) published() []adactor.PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mqtt == nil {
		return nil
	}
	return f.mqtt.Published()
}

func spawnMaster(t *testing.T, api *apsystems.TestClient) *masterFixture {
	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	f := &masterFixture{api: api}
	f.as = actorutil.NewActorSystemWithZapLogger(logger)

	poller := service.NewPoller(api, service.FixedDelayPolicy{Attempts: config.RECOVERY_ATTEMPTS, Interval: cfg.RetryDelay()}, logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.APSystemsActor {
			return adactor.NewAPSystemsActor(api, poller, cfg.TaskTimeout(), logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			act := adactor.NewTestMQTTActor(&cfg, es, logger)
			f.mu.Lock()
			f.mqtt = act
			f.mu.Unlock()
			return act
		}, nil, logger)
	})
	pid, err := f.as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	f.pid = pid

	t.Cleanup(func() {
		f.as.Root.Stop(pid)
		f.as.Shutdown()
	})
	return f
}

func (f *masterFixture) request(t *testing.T, msg any) any {
	res, err := f.as.Root.RequestFuture(f.pid, msg, 5*time.Second).Result()
	require.NoError(t, err)
	return res
}

func TestMasterActor(t *testing.T) {

	f := spawnMaster(t, apsystems.NewTestClient())

	// still listing inverters right after spawn
	first, ok := f.request(t, domain.ActorHealthRequest{}).(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MASTER, first.Id)
	assert.False(t, first.Healthy)
	assert.Equal(t, "discovering", first.State)

	require.Eventually(t, func() bool {
		healthResp, ok := f.request(t, domain.ActorHealthRequest{}).(domain.ActorHealthResponse)
		return ok && healthResp.Healthy
	}, 5*time.Second, 50*time.Millisecond, "healthy after startup")

	invResp := f.request(t, domain.GetInvertersRequest{}).(domain.GetInvertersResponse)
	assert.Equal(t, []domain.Inverter{{Id: "D1", Name: "Roof"}, {Id: "D2", Name: "Garage"}}, invResp.Inverters)
}

func TestMasterActorReadings(t *testing.T) {

	f := spawnMaster(t, apsystems.NewTestClient())

	require.Eventually(t, func() bool {
		resp := f.request(t, domain.GetInverterReadingsRequest{InverterId: "D1"}).(domain.GetInverterReadingsResponse)
		return !resp.HasResponseError() && len(resp.Readings) == len(domain.MetricKinds)
	}, 5*time.Second, 50*time.Millisecond)

	resp := f.request(t, domain.GetInverterReadingsRequest{InverterId: "D1"}).(domain.GetInverterReadingsResponse)
	assert.Equal(t, "Roof", resp.Inverter.Name)
	assert.Equal(t, float64(apsystems.TEST_POWER_WATT), resp.Readings[0].Value)

	missing := f.request(t, domain.GetInverterReadingsRequest{InverterId: "nope"}).(domain.GetInverterReadingsResponse)
	assert.ErrorIs(t, missing.GetResponseError(), domain.ErrInverterNotFound)
}

func TestMasterActorPublishesToMQTT(t *testing.T) {

	f := spawnMaster(t, apsystems.NewTestClient())

	// discovery config for the bridge, 2x3 sensors and 2 buttons, plus state values
	require.Eventually(t, func() bool {
		discovery, states := 0, 0
		for _, m := range f.published() {
			switch {
			case strings.HasPrefix(m.Topic, "homeassistant/"):
				discovery++
			case strings.HasPrefix(m.Topic, "apsystems/"):
				states++
			}
		}
		return discovery == 9 && states >= 6
	}, 5*time.Second, 50*time.Millisecond)
}

func TestMasterActorRefreshButton(t *testing.T) {

	api := apsystems.NewTestClient()
	f := spawnMaster(t, api)

	// wait for the first cycle of both inverters
	require.Eventually(t, func() bool {
		return api.RealtimeCalls() == 2
	}, 5*time.Second, 50*time.Millisecond)

	// settle the first cycle before pressing
	time.Sleep(200 * time.Millisecond)

	f.as.Root.Send(f.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Command:  mqtt.MQTT_COMMAND_BUTTON,
		DeviceId: "D2",
		Payload:  mqtt.MQTT_PAYLOAD_PRESS,
	}})

	require.Eventually(t, func() bool {
		return api.RealtimeCalls() == 3
	}, 5*time.Second, 50*time.Millisecond)

	// unknown inverters are ignored
	f.as.Root.Send(f.pid, domain.RefreshInverterRequest{InverterId: "nope"})
	healthResp := f.request(t, domain.ActorHealthRequest{}).(domain.ActorHealthResponse)
	assert.True(t, healthResp.Healthy)
}

func TestMasterActorRetriesDiscovery(t *testing.T) {

	api := apsystems.NewTestClient()
	var mu sync.Mutex
	failures := 1
	api.ListFn = func() ([]apsystems.Inverter, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return nil, errors.New("listing unavailable")
		}
		return []apsystems.Inverter{{InverterDevId: "D1", DeviceName: "Roof"}}, nil
	}

	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	poller := service.NewPoller(api, service.DefaultRecoveryPolicy(), logger)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		act := NewMasterOfPuppetsActor(cfg, func() *adactor.APSystemsActor {
			return adactor.NewAPSystemsActor(api, poller, cfg.TaskTimeout(), logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, nil, logger)
		act.discoveryRetryDelay = 50 * time.Millisecond
		return act
	}))
	defer as.Root.Stop(pid)

	// queued while discovering, answered once the listing succeeds
	res, err := as.Root.RequestFuture(pid, domain.GetInvertersRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, []domain.Inverter{{Id: "D1", Name: "Roof"}}, res.(domain.GetInvertersResponse).Inverters)
}
