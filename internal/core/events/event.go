package events

import (
	. "github.com/berfenger/apsystems2mqtt/internal/core/domain"
)

// ReadingToUpdateEvents converts a fresh reading into the events published on
// the event stream: the sensor state update and the reading itself.
func ReadingToUpdateEvents(inverter Inverter, reading Reading) []any {
	info, ok := reading.Kind.Info()
	if !ok {
		return nil
	}
	return []any{
		FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: MetricUniqueId(inverter.Id, reading.Kind),
			},
			Value:    reading.Value,
			Decimals: info.Decimals,
		},
		InverterReadingEvent{
			Inverter: inverter,
			Reading:  reading,
		},
	}
}

func BridgeOnlineEvent(online bool) BridgeStateUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
