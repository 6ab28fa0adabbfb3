package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/port"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// APSystemsActor owns the EMA API client. Requests are served one at a time,
// so a session refresh never races with another call.
type APSystemsActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	api         port.InverterAPI
	poller      port.MetricPoller
	taskTimeout time.Duration
	busyWith    string
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

type loginResult struct {
	err error
}

func NewAPSystemsActor(api port.InverterAPI, poller port.MetricPoller, taskTimeout time.Duration, logger *zap.Logger) *APSystemsActor {
	act := &APSystemsActor{
		api:         api,
		poller:      poller,
		taskTimeout: taskTimeout,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_APSYSTEMS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *APSystemsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *APSystemsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("apsystems@starting started")
		actorutil.NewBackgroundTaskWithContext(ctx, func(goCtx context.Context) (*loginResult, error) {
			return &loginResult{err: state.api.Login(goCtx)}, nil
		}).WithTimeout(state.taskTimeout).Recover(func(err error) loginResult {
			return loginResult{err: err}
		}).PipeTo(ctx.Self())
	case loginResult:
		if msg.err != nil {
			// let the supervisor retry with backoff
			state.logger.Error("apsystems@starting login failed", zap.Error(msg.err))
			panic(msg.err)
		}
		state.logger.Info("apsystems@starting logged in")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_APSYSTEMS,
			Healthy: false,
			State:   "login",
		})
	case *actor.Restarting:
	default:
		state.logger.Debug("apsystems@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *APSystemsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("apsystems@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_APSYSTEMS,
			Healthy: true,
			State:   "idle",
		})
	case domain.ListInvertersRequest:
		state.logger.Debug("apsystems@default: ListInvertersRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskWithContext(ctx, state.listInverters),
			mapTaskResult[domain.ListInvertersResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ListInvertersResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.taskTimeout).PipeTo(ctx.Self())
		state.busyWith = "list"
		state.behavior.BecomeStacked(state.WaitingAPI)
	case domain.PollMetricRequest:
		state.logger.Debug("apsystems@default: PollMetricRequest",
			zap.String("inverter", msg.Inverter.Id), zap.String("metric", string(msg.Kind)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		base := domain.PollMetricResponse{
			Inverter: msg.Inverter,
			Kind:     msg.Kind,
			Cycle:    msg.Cycle,
		}

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskWithContext(ctx, func(goCtx context.Context) (*domain.PollMetricResponse, error) {
			reading, err := state.poller.Poll(goCtx, msg.Inverter, msg.Kind)
			resp := base
			resp.Reading = reading
			resp.ResponseError = err
			return &resp, nil
		}), mapTaskResult[domain.PollMetricResponse](sender)).Recover(func(err error) backgroundTaskResult {
			resp := base
			resp.ResponseError = err
			return backgroundTaskResult{
				message: resp,
				replyTo: sender,
			}
		}).WithTimeout(state.taskTimeout).PipeTo(ctx.Self())
		state.busyWith = fmt.Sprintf("poll %s/%s", msg.Inverter.Id, msg.Kind)
		state.behavior.BecomeStacked(state.WaitingAPI)
	case *actor.Stopping:
		state.logger.Debug("apsystems@default stopping")
	default:
		state.logger.Debug("apsystems@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *APSystemsActor) WaitingAPI(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("apsystems@WaitingAPI backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.busyWith = ""
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_APSYSTEMS,
			Healthy: true,
			State:   state.busyWith,
		})
	case *actor.Stopping:
		state.logger.Debug("apsystems@WaitingAPI stopping")
	default:
		state.logger.Debug("apsystems@WaitingAPI stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *APSystemsActor) listInverters(goCtx context.Context) (*domain.ListInvertersResponse, error) {
	list, err := state.api.ListInverters(goCtx)
	if err != nil {
		state.logger.Error("apsystems: list inverters", zap.Error(err))
		return nil, err
	}
	inverters := make([]domain.Inverter, 0, len(list))
	for _, inv := range list {
		inverters = append(inverters, domain.Inverter{
			Id:   inv.InverterDevId,
			Name: inv.DeviceName,
		})
	}
	return &domain.ListInvertersResponse{
		Inverters: inverters,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
