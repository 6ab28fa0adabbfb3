package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/events"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushed int
	closed  bool
}

func (w *memoryWriter) WritePoint(point *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, point)
}

func (w *memoryWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed++
}

func (w *memoryWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var lines []string
	for _, p := range w.points {
		lines = append(lines, write.PointToLineProtocol(p, time.Second))
	}
	return lines
}

func TestReadingToPoint(t *testing.T) {

	at := time.Unix(1700000000, 0)
	p := ReadingToPoint(domain.Inverter{Id: "D1", Name: "Roof"}, domain.Reading{
		Kind:    domain.METRIC_POWER_NOW,
		Value:   0,
		Offline: true,
		At:      at,
	})

	assert.Equal(t, INFLUX_MEASUREMENT, p.Name())
	assert.Equal(t, at, p.Time())

	line := write.PointToLineProtocol(p, time.Second)
	assert.Contains(t, line, "inverter_reading,inverter_id=D1,inverter_name=Roof,metric=power_now ")
	assert.Contains(t, line, "offline=true")
	assert.Contains(t, line, " 1700000000")
}

func TestInfluxActorWritesReadings(t *testing.T) {

	require := require.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	writer := &memoryWriter{}
	provider := func() (PointWriter, func(), error) {
		return writer, func() {
			writer.mu.Lock()
			writer.closed = true
			writer.mu.Unlock()
		}, nil
	}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewInfluxActor(provider, es, logger)
	}))

	// wait for the subscription
	_, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(err)

	roof := domain.Inverter{Id: "D1", Name: "Roof"}
	at := time.Unix(1700000000, 0)
	for _, ev := range events.ReadingToUpdateEvents(roof, domain.Reading{Kind: domain.METRIC_TODAY_ENERGY, Value: 3.25, At: at}) {
		es.Publish(ev)
	}

	require.Eventually(func() bool {
		return len(writer.lines()) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Contains(writer.lines()[0], "metric=today_energy")
	require.Contains(writer.lines()[0], "value=3.25")

	require.NoError(as.Root.StopFuture(pid).Wait())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Equal(1, writer.flushed)
	require.True(writer.closed)
}
