package domain

import (
	"errors"

	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_APSYSTEMS    = "apsystems"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_INFLUX       = "influx"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_INVERTER     = "inverter"
)

var ErrInverterNotFound = errors.New("inverter not found")

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// APsystems gateway

type ListInvertersRequest struct {
	ActorRequestMixIn
}

type ListInvertersResponse struct {
	ActorResponseMixIn
	Inverters []Inverter
}

type PollMetricRequest struct {
	ActorRequestMixIn
	Inverter Inverter
	Kind     MetricKind
	Cycle    uint64
}

type PollMetricResponse struct {
	ActorResponseMixIn
	Inverter Inverter
	Kind     MetricKind
	Cycle    uint64
	Reading  *Reading
}

// Inverters

type GetInvertersRequest struct {
	ActorRequestMixIn
}

type GetInvertersResponse struct {
	ActorResponseMixIn
	Inverters []Inverter
}

type GetInverterReadingsRequest struct {
	ActorRequestMixIn
	InverterId string
}

type GetInverterReadingsResponse struct {
	ActorResponseMixIn
	Inverter Inverter
	Readings []Reading
}

type RefreshInverterRequest struct {
	ActorRequestMixIn
	InverterId string
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
