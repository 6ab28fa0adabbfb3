package actorutil

import (
	"testing"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"
	"github.com/berfenger/apsystems2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

func TestParsedButtonCommand(t *testing.T) {

	assert := assert.New(t)

	cmd := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "D1",
		Command:  mqtt.MQTT_COMMAND_BUTTON,
		Payload:  mqtt.MQTT_PAYLOAD_PRESS,
	})
	assert.Equal(domain.RefreshInverterRequest{InverterId: "D1"}, cmd)
}

func TestParsedUnknownCommand(t *testing.T) {

	assert := assert.New(t)

	assert.Nil(ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "D1",
		Command:  "switch",
		Payload:  "on",
	}))
	assert.Nil(ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "D1",
		Command:  mqtt.MQTT_COMMAND_BUTTON,
		Payload:  "hold",
	}))
}

func TestStateName(t *testing.T) {

	assert := assert.New(t)

	s := &ActorWithStates{}
	assert.Equal("", s.StateName())

	s.Become(namedState("idle"))
	s.BecomeStacked(namedState("polling"))
	assert.Equal("polling", s.StateName())

	s.UnbecomeStacked()
	assert.Equal("idle", s.StateName())
}

type namedState string

func (n namedState) Name() string {
	return string(n)
}

func (n namedState) Receive(ctx actor.Context) {}
