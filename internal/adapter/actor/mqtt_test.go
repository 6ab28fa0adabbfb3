package actor

import (
	"testing"
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/core/events"
	"github.com/berfenger/apsystems2mqtt/internal/mqtt"
	"github.com/berfenger/apsystems2mqtt/internal/util"
	"github.com/berfenger/apsystems2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	mqttActor := NewTestMQTTActor(&cfg, &es, logger)
	props := actor.PropsFromProducer(func() actor.Actor { return mqttActor })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	roof := domain.Inverter{Id: "D1", Name: "Roof"}
	for _, ev := range events.ReadingToUpdateEvents(roof, domain.Reading{Kind: domain.METRIC_POWER_NOW, Value: 450}) {
		es.Publish(ev)
	}
	for _, ev := range events.ReadingToUpdateEvents(roof, domain.Reading{Kind: domain.METRIC_LIFETIME_ENERGY, Value: 1234.5}) {
		es.Publish(ev)
	}

	assert.Eventually(t, func() bool {
		return len(mqttActor.Published()) == 2
	}, 2*time.Second, 50*time.Millisecond)

	published := mqttActor.Published()
	assert.Equal(t, PublishedMessage{Topic: "apsystems/sensor/apsystemsapi_D1_now/state", Payload: "450"}, published[0])
	assert.Equal(t, PublishedMessage{Topic: "apsystems/sensor/apsystemsapi_D1_lifetime/state", Payload: "1234.500"}, published[1])

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	// unsubscribed on stop
	es.Publish(events.BridgeOnlineEvent(true))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, mqttActor.Published(), 2)

	as.Shutdown()
}

func TestMQTTActorDiscovery(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryTopic = "hass"

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	mqttActor := NewTestMQTTActor(&cfg, nil, logger)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return mqttActor }))
	defer as.Root.Stop(pid)

	roof := domain.Inverter{Id: "D1", Name: "Roof"}
	bridge := events.BridgeDevice(cfg.MQTT.BaseTopic)
	dev := events.InverterDevice(roof, bridge)

	result, err := as.Root.RequestFuture(pid, domain.PublishDiscoveryRequest{
		Sensors: append(events.BridgeSensors(bridge), events.InverterSensors(dev, roof)...),
		Buttons: events.InverterButtons(dev, roof),
	}, 2*time.Second).Result()
	require.NoError(err)
	require.False(result.(domain.PublishDiscoveryResponse).HasResponseError())

	published := mqttActor.Published()
	require.Len(published, 5)
	topics := make([]string, 0, len(published))
	for _, p := range published {
		require.True(p.Retain, "discovery is retained")
		topics = append(topics, p.Topic)
	}
	require.Contains(topics, "hass/sensor/apsystems_inverter_D1/apsystemsapi_D1_today/config")
	require.Contains(topics, "hass/button/apsystems_inverter_D1/D1/config")
	require.Contains(topics, "hass/binary_sensor/"+bridge.Id+"/bridge/config")
}

func TestMQTTActorForwardsButtonPress(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	received := make(chan ParsedCommand, 1)
	parent := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			ctx.SpawnNamed(actor.PropsFromProducer(func() actor.Actor {
				return NewTestMQTTActor(&cfg, nil, logger)
			}), domain.ACTOR_ID_MQTT)
		case ParsedCommand:
			received <- msg
		}
	}))
	defer as.Root.Stop(parent)

	time.Sleep(200 * time.Millisecond)

	child := actor.NewPID(as.Address(), parent.Id+"/"+domain.ACTOR_ID_MQTT)
	as.Root.Send(child, ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "D2",
		Command:  mqtt.MQTT_COMMAND_BUTTON,
		Payload:  mqtt.MQTT_PAYLOAD_PRESS,
	}})

	select {
	case got := <-received:
		assert.Equal(t, "D2", got.Command.DeviceId)
	case <-time.After(2 * time.Second):
		t.Fatal("command not forwarded to parent")
	}
}
