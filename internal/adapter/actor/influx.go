package actor

import (
	"fmt"

	"github.com/berfenger/apsystems2mqtt/internal/config"
	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const INFLUX_MEASUREMENT = "inverter_reading"

// PointWriter is the non blocking part of the influx write API used here.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// PointWriterProvider opens a writer and returns the function that releases it.
type PointWriterProvider func() (PointWriter, func(), error)

type InfluxActor struct {
	behavior       actor.Behavior
	writerProvider PointWriterProvider
	writer         PointWriter
	closeWriter    func()
	eventStream    *eventstream.EventStream
	subscription   *eventstream.Subscription
	written        int
	logger         *zap.Logger
}

type writeReading struct {
	event domain.InverterReadingEvent
}

func NewInfluxActor(writerProvider PointWriterProvider, eventStream *eventstream.EventStream, logger *zap.Logger) *InfluxActor {
	act := &InfluxActor{
		behavior:       actor.NewBehavior(),
		writerProvider: writerProvider,
		eventStream:    eventStream,
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_INFLUX, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *InfluxActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *InfluxActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("influx@default started")
		writer, closeWriter, err := state.writerProvider()
		if err != nil {
			panic(err)
		}
		state.writer = writer
		state.closeWriter = closeWriter

		root, self := ctx.ActorSystem().Root, ctx.Self()
		state.subscription = state.eventStream.Subscribe(func(evt any) {
			if ev, ok := evt.(domain.InverterReadingEvent); ok {
				root.Send(self, writeReading{event: ev})
			}
		})
	case writeReading:
		state.writer.WritePoint(ReadingToPoint(msg.event.Inverter, msg.event.Reading))
		state.written++
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_INFLUX,
			Healthy: true,
			State:   fmt.Sprintf("written %d", state.written),
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	}
}

func (state *InfluxActor) stop() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
	if state.writer != nil {
		state.writer.Flush()
	}
	if state.closeWriter != nil {
		state.closeWriter()
		state.closeWriter = nil
	}
}

func ReadingToPoint(inverter domain.Inverter, reading domain.Reading) *write.Point {
	return influxdb2.NewPoint(INFLUX_MEASUREMENT,
		map[string]string{
			"inverter_id":   inverter.Id,
			"inverter_name": inverter.Name,
			"metric":        string(reading.Kind),
		},
		map[string]any{
			"value":   reading.Value,
			"offline": reading.Offline,
		},
		reading.At)
}

// InfluxWriterProvider connects to the configured bucket. Write errors are
// reported asynchronously and only logged.
func InfluxWriterProvider(cfg config.InfluxConfig, logger *zap.Logger) PointWriterProvider {
	return func() (PointWriter, func(), error) {
		client := influxdb2.NewClient(cfg.URL, cfg.Token)
		writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

		go func() {
			for err := range writeAPI.Errors() {
				logger.Error("influx: write failed", zap.Error(err))
			}
		}()

		// Close flushes pending points and ends the errors loop
		return writeAPI, client.Close, nil
	}
}
