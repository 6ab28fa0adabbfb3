package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/config"
	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/events"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const MQTT_HEALTH_TIMEOUT = 10 * time.Second

// HADiscoveryActor announces the bridge and the discovered inverters to Home
// Assistant once the MQTT actor is up, then stays idle.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	inverters []domain.Inverter
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, inverters []domain.Inverter, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		inverters: inverters,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// the MQTT actor answers health only once connected
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, MQTT_HEALTH_TIMEOUT), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		sensors, buttons := DiscoveryEntities(state.config.MQTT.BaseTopic, state.inverters)
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: sensors,
			Buttons: buttons,
		}, MQTT_HEALTH_TIMEOUT), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@healthcheck publish failed", zap.Error(msg.GetResponseError()))
			panic(msg.GetResponseError())
		}
		state.logger.Info("hadiscovery: entities announced", zap.Int("inverters", len(state.inverters)))
		state.behavior.Become(state.Done)
	default:
		state.logger.Debug("hadiscovery@healthcheck: ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
}

// DiscoveryEntities lists the bridge state sensor and, per inverter, the three
// metric sensors and the refresh button.
func DiscoveryEntities(baseTopic string, inverters []domain.Inverter) ([]domain.GenericSensor, []domain.GenericButton) {
	var sensors []domain.GenericSensor
	var buttons []domain.GenericButton

	bridgeDevice := events.BridgeDevice(baseTopic)
	sensors = append(sensors, events.BridgeSensors(bridgeDevice)...)

	for _, inv := range inverters {
		inverterDevice := events.InverterDevice(inv, bridgeDevice)
		sensors = append(sensors, events.InverterSensors(inverterDevice, inv)...)
		buttons = append(buttons, events.InverterButtons(inverterDevice, inv)...)
	}
	return sensors, buttons
}
