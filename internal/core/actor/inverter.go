package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/events"
	. "github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// InverterActor keeps the latest reading of every metric of one inverter and
// polls them through the APsystems actor every poll interval.
type InverterActor struct {
	ActorWithStates
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	inverter       domain.Inverter
	apsystemsActor *actor.PID
	eventStream    *eventstream.EventStream
	pollInterval   time.Duration
	cycleTimeout   time.Duration

	cycle          uint64
	pending        int
	cycleStart     time.Time
	cancelTick     scheduler.CancelFunc
	cancelDeadline scheduler.CancelFunc
	readings       map[domain.MetricKind]domain.Reading
	lastError      error

	logger *zap.Logger
}

type inverterTick struct {
}

type inverterCycleDeadline struct {
	cycle uint64
}

type inverterIdle struct {
	a *InverterActor
}

type inverterPolling struct {
	a *InverterActor
}

func NewInverterActor(inverter domain.Inverter, apsystemsActor *actor.PID, eventStream *eventstream.EventStream,
	pollInterval, cycleTimeout time.Duration, logger *zap.Logger) *InverterActor {
	act := &InverterActor{
		ActorWithStates: ActorWithStates{Behavior: actor.NewBehavior()},
		stash:           &Stash{},
		inverter:        inverter,
		apsystemsActor:  apsystemsActor,
		eventStream:     eventStream,
		pollInterval:    pollInterval,
		cycleTimeout:    cycleTimeout,
		readings:        make(map[domain.MetricKind]domain.Reading),
		logger:          ActorLogger(InverterActorName(inverter.Id), logger).With(zap.String("inverter_name", inverter.Name)),
	}
	act.Become(inverterIdle{a: act})
	return act
}

func InverterActorName(inverterId string) string {
	return fmt.Sprintf("%s_%s", domain.ACTOR_ID_INVERTER, inverterId)
}

func (state *InverterActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (s inverterIdle) Name() string {
	return "idle"
}

func (s inverterIdle) Receive(ctx actor.Context) {
	state := s.a
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("inverter@idle started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// first poll right away
		ctx.Send(ctx.Self(), inverterTick{})
	case *actor.Restarting, *actor.Stopping:
		state.cancelTimers()
	case inverterTick:
		state.cancelTick = nil
		state.startCycle(ctx)
	case domain.RefreshInverterRequest:
		state.logger.Info("inverter@idle refresh requested")
		if state.cancelTick != nil {
			state.cancelTick()
			state.cancelTick = nil
		}
		state.startCycle(ctx)
	case domain.PollMetricResponse:
		state.logger.Debug("inverter@idle late response ignored", zap.Uint64("cycle", msg.Cycle), zap.String("metric", string(msg.Kind)))
	case inverterCycleDeadline:
	case domain.GetInverterReadingsRequest:
		state.respondReadings(ctx, msg)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("inverter@idle ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (s inverterPolling) Name() string {
	return "polling"
}

func (s inverterPolling) Receive(ctx actor.Context) {
	state := s.a
	switch msg := ctx.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		state.cancelTimers()
	case domain.PollMetricResponse:
		if msg.Cycle != state.cycle {
			state.logger.Debug("inverter@polling stale response ignored", zap.Uint64("cycle", msg.Cycle))
			return
		}
		state.handleResponse(msg)
		state.pending--
		if state.pending <= 0 {
			state.finishCycle(ctx)
		}
	case inverterCycleDeadline:
		if msg.cycle != state.cycle {
			return
		}
		state.logger.Warn("inverter@polling cycle deadline reached", zap.Int("pending", state.pending), zap.Duration("timeout", state.cycleTimeout))
		state.finishCycle(ctx)
	case domain.RefreshInverterRequest:
		state.logger.Debug("inverter@polling refresh ignored, already polling")
	case inverterTick:
		state.logger.Debug("inverter@polling tick ignored, already polling")
	case domain.GetInverterReadingsRequest:
		state.respondReadings(ctx, msg)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	default:
		state.logger.Debug("inverter@polling: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *InverterActor) startCycle(ctx actor.Context) {
	state.cycle++
	state.pending = len(domain.MetricKinds)
	state.lastError = nil
	state.cycleStart = time.Now()
	state.logger.Debug("inverter: poll cycle", zap.Uint64("cycle", state.cycle))
	for _, kind := range domain.MetricKinds {
		ctx.Send(state.apsystemsActor, domain.PollMetricRequest{
			ActorRequestMixIn: domain.ActorRequestMixIn{
				ReplyToRef: RefOf(ctx.Self()),
			},
			Inverter: state.inverter,
			Kind:     kind,
			Cycle:    state.cycle,
		})
	}
	state.cancelDeadline = state.scheduler.SendOnce(state.cycleTimeout, ctx.Self(), inverterCycleDeadline{cycle: state.cycle})
	state.BecomeStacked(inverterPolling{a: state})
}

func (state *InverterActor) handleResponse(msg domain.PollMetricResponse) {
	if msg.HasResponseError() || msg.Reading == nil {
		// keep the previous value
		state.lastError = msg.GetResponseError()
		state.logger.Error("inverter: poll failed", zap.String("metric", string(msg.Kind)), zap.Error(msg.GetResponseError()))
		return
	}
	state.readings[msg.Kind] = *msg.Reading
	state.logger.Debug("inverter: reading",
		zap.String("metric", string(msg.Kind)), zap.Float64("value", msg.Reading.Value), zap.Bool("offline", msg.Reading.Offline))
	for _, ev := range events.ReadingToUpdateEvents(state.inverter, *msg.Reading) {
		state.eventStream.Publish(ev)
	}
}

func (state *InverterActor) finishCycle(ctx actor.Context) {
	if state.cancelDeadline != nil {
		state.cancelDeadline()
		state.cancelDeadline = nil
	}
	state.logger.Debug("inverter: cycle done", zap.Uint64("cycle", state.cycle), zap.Duration("took", time.Since(state.cycleStart)))
	state.pending = 0
	state.cancelTick = state.scheduler.SendOnce(state.pollInterval, ctx.Self(), inverterTick{})
	state.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *InverterActor) cancelTimers() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	if state.cancelDeadline != nil {
		state.cancelDeadline()
		state.cancelDeadline = nil
	}
}

func (state *InverterActor) respondReadings(ctx actor.Context, msg domain.GetInverterReadingsRequest) {
	readings := make([]domain.Reading, 0, len(state.readings))
	for _, kind := range domain.MetricKinds {
		if r, ok := state.readings[kind]; ok {
			readings = append(readings, r)
		}
	}
	ForRequest(msg).Respond(ctx, domain.GetInverterReadingsResponse{
		Inverter: state.inverter,
		Readings: readings,
	})
}

func (state *InverterActor) respondHealth(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      InverterActorName(state.inverter.Id),
		Healthy: true,
		State:   state.StateName(),
	}
	if state.lastError != nil {
		resp.State = fmt.Sprintf("%s (last error: %s)", resp.State, state.lastError)
	}
	ctx.Respond(resp)
}
