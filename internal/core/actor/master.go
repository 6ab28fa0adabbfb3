package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/apsystems2mqtt/internal/adapter/actor"
	"github.com/berfenger/apsystems2mqtt/internal/config"
	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	. "github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const DISCOVERY_RETRY_DELAY = 10 * time.Second

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type APSystemsActorProvider func() *adactor.APSystemsActor

type InfluxActorProvider func(*eventstream.EventStream) *adactor.InfluxActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck     healthCheckResult
	eventStream            *eventstream.EventStream
	scheduler              *scheduler.TimerScheduler
	apsystemsActor         *actor.PID
	mqttActor              *actor.PID
	influxActor            *actor.PID
	inverters              []domain.Inverter
	inverterActors         map[string]*actor.PID
	apsystemsActorProvider APSystemsActorProvider
	mqttActorProvider      MQTTActorProvider
	influxActorProvider    InfluxActorProvider
	discoveryRetryDelay    time.Duration
	logger                 *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	expected       []string
	checksReceived int
	respondTo      *actor.PID
}

type discoverInverters struct {
}

// NewMasterOfPuppetsActor wires the actor tree. influxActorProvider may be nil
// when the influx sink is disabled.
func NewMasterOfPuppetsActor(config config.Config, apsystemsActorProvider APSystemsActorProvider, mqttActorProvider MQTTActorProvider,
	influxActorProvider InfluxActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		inverterActors:         make(map[string]*actor.PID),
		apsystemsActorProvider: apsystemsActorProvider,
		mqttActorProvider:      mqttActorProvider,
		influxActorProvider:    influxActorProvider,
		discoveryRetryDelay:    DISCOVERY_RETRY_DELAY,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)

		// start APsystems child
		apsystemsActorPID, err := state.startAPSystemsActor(ctx)
		if err != nil {
			panic(err)
		}
		state.apsystemsActor = apsystemsActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Influx child
		if state.influxActorProvider != nil {
			influxActorPID, err := state.startInfluxActor(ctx)
			if err != nil {
				panic(err)
			}
			state.influxActor = influxActorPID
		}

		ctx.Send(ctx.Self(), discoverInverters{})
	case discoverInverters:
		state.logger.Debug("master@starting list inverters")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.apsystemsActor, domain.ListInvertersRequest{}, 2*state.config.TaskTimeout()), func(err error) any {
			return domain.ListInvertersResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.ListInvertersResponse:
		if msg.HasResponseError() {
			state.logger.Error("master@starting inverter listing failed, retrying",
				zap.Error(msg.GetResponseError()), zap.Duration("delay", state.discoveryRetryDelay))
			state.scheduler.SendOnce(state.discoveryRetryDelay, ctx.Self(), discoverInverters{})
			return
		}
		state.logger.Info("master@starting inverters discovered", zap.Int("count", len(msg.Inverters)))
		state.inverters = msg.Inverters
		for _, inv := range msg.Inverters {
			pid, err := state.startInverterActor(ctx, inv)
			if err != nil {
				panic(err)
			}
			state.inverterActors[inv.Id] = pid
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MASTER,
			Healthy: false,
			State:   "discovering",
		})
	case *actor.Terminated:
		state.onTerminated(msg)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.healthCheckedActors())
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.healthCheckedPIDs() {
			actorId := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      actorId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetInvertersRequest:
		ForRequest(msg).Respond(ctx, domain.GetInvertersResponse{
			Inverters: state.inverters,
		})
	case domain.GetInverterReadingsRequest:
		pid, ok := state.inverterActors[msg.InverterId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.GetInverterReadingsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("%w: %s", domain.ErrInverterNotFound, msg.InverterId),
				},
			})
			return
		}
		ctx.Forward(pid)
	case domain.RefreshInverterRequest:
		state.refreshInverter(ctx, msg)
	case adactor.ParsedCommand:
		// redirect parsedCommand to inverter actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			if cmd, ok := ParsedMQTTCommandToCommand(*msg.Command).(domain.RefreshInverterRequest); ok {
				state.refreshInverter(ctx, cmd)
			}
		}
	case *actor.Terminated:
		state.onTerminated(msg)
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			ctx.CancelReceiveTimeout()
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) refreshInverter(ctx actor.Context, msg domain.RefreshInverterRequest) {
	pid, ok := state.inverterActors[msg.InverterId]
	if !ok {
		state.logger.Warn("master@default refresh of unknown inverter", zap.String("inverter", msg.InverterId))
		return
	}
	ctx.Send(pid, msg)
}

func (state *MasterOfPuppetsActor) onTerminated(msg *actor.Terminated) {
	// the gateway gave up restarting, nothing can be polled anymore
	if msg.Who.Id == state.apsystemsActor.GetId() {
		state.logger.Error("master apsystems actor terminated")
		panic(errors.New("apsystems terminated"))
	}
}

func (state *MasterOfPuppetsActor) healthCheckedPIDs() map[string]*actor.PID {
	pids := map[string]*actor.PID{
		domain.ACTOR_ID_APSYSTEMS: state.apsystemsActor,
		domain.ACTOR_ID_MQTT:      state.mqttActor,
	}
	if state.influxActor != nil {
		pids[domain.ACTOR_ID_INFLUX] = state.influxActor
	}
	return pids
}

func (state *MasterOfPuppetsActor) healthCheckedActors() []string {
	var ids []string
	for id := range state.healthCheckedPIDs() {
		ids = append(ids, id)
	}
	return ids
}

func (state *MasterOfPuppetsActor) startAPSystemsActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	apsystemsProps := actor.PropsFromProducer(func() actor.Actor {
		return state.apsystemsActorProvider()
	}, actor.WithSupervisor(supervisor))
	apsystemsActorPID, err := ctx.SpawnNamed(apsystemsProps, domain.ACTOR_ID_APSYSTEMS)
	if err != nil {
		return nil, err
	}

	return apsystemsActorPID, nil
}

func (state *MasterOfPuppetsActor) startInverterActor(ctx actor.Context, inverter domain.Inverter) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	pollInterval := state.config.PollInterval()
	cycleTimeout := 3 * state.config.TaskTimeout()
	if cycleTimeout < pollInterval {
		cycleTimeout = pollInterval
	}

	inverterProps := actor.PropsFromProducer(func() actor.Actor {
		return NewInverterActor(inverter, state.apsystemsActor, state.eventStream, pollInterval, cycleTimeout, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(inverterProps, InverterActorName(inverter.Id))
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.inverters, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startInfluxActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	influxProps := actor.PropsFromProducer(func() actor.Actor {
		return state.influxActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(influxProps, domain.ACTOR_ID_INFLUX)
}

func (state *healthCheckResult) reset(expected []string) {
	state.healthy = make(map[string]bool)
	state.expected = expected
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
