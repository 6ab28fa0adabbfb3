package events

import (
	"testing"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roof = domain.Inverter{Id: "D1", Name: "Roof"}

func TestInverterSensors(t *testing.T) {

	require := require.New(t)

	bridge := BridgeDevice("apsystems")
	dev := InverterDevice(roof, bridge)
	sensors := InverterSensors(dev, roof)
	require.Len(sensors, 3)

	power := sensors[0]
	require.Equal("apsystemsapi_D1_now", power.UniqueId)
	require.Equal("apsystemsapi_D1_now", power.Id)
	require.Equal("APsystems Roof Power", power.Name)
	require.Equal("W", power.UnitOfMeasurement)
	require.Equal(domain.DEVICE_CLASS_POWER, power.DeviceClass)
	require.Equal(domain.STATE_CLASS_MEASUREMENT, power.StateClass)
	require.Equal(MANUFACTURER, power.Device.Manufacturer)
	require.Equal(bridge.Id, power.Device.ViaDevice)

	lifetime := sensors[1]
	require.Equal("apsystemsapi_D1_lifetime", lifetime.UniqueId)
	require.Equal("APsystems Roof All-Time Production", lifetime.Name)
	require.Equal("kWh", lifetime.UnitOfMeasurement)
	require.Equal(domain.DEVICE_CLASS_ENERGY, lifetime.DeviceClass)
	require.Equal(domain.STATE_CLASS_TOTAL, lifetime.StateClass)
	require.Equal(dev.Id, lifetime.Device.Id)
	require.Empty(lifetime.Device.Manufacturer, "only the first sensor describes the device")

	today := sensors[2]
	require.Equal("apsystemsapi_D1_today", today.UniqueId)
	require.Equal("APsystems Roof Today Production", today.Name)
	require.Equal(domain.STATE_CLASS_TOTAL_INCREASING, today.StateClass)
	require.Equal(uint(3), today.Decimals)
}

func TestInverterButtons(t *testing.T) {

	buttons := InverterButtons(InverterDevice(roof, BridgeDevice("apsystems")), roof)
	require.Len(t, buttons, 1)
	assert.Equal(t, "D1", buttons[0].Id)
	assert.Equal(t, "apsystemsapi_D1_refresh", buttons[0].UniqueId)
	assert.Equal(t, "APsystems Roof Refresh", buttons[0].Name)
}

func TestBridgeDeviceIsStable(t *testing.T) {

	assert := assert.New(t)

	a := BridgeDevice("apsystems")
	b := BridgeDevice("apsystems")
	c := BridgeDevice("other")
	assert.Equal(a.Id, b.Id)
	assert.NotEqual(a.Id, c.Id)

	sensors := BridgeSensors(a)
	assert.Len(sensors, 1)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)
	assert.Equal(domain.SENSOR_TYPE_BINARY, sensors[0].SensorType)
}

func TestReadingToUpdateEvents(t *testing.T) {

	require := require.New(t)

	reading := domain.Reading{Kind: domain.METRIC_POWER_NOW, Value: 450}
	evs := ReadingToUpdateEvents(roof, reading)
	require.Len(evs, 2)

	update, ok := evs[0].(domain.FloatSensorUpdateEvent)
	require.True(ok)
	require.Equal("apsystemsapi_D1_now", update.SensorId())
	require.Equal(450.0, update.Value)
	require.Equal(uint(0), update.Decimals)

	readingEv, ok := evs[1].(domain.InverterReadingEvent)
	require.True(ok)
	require.Equal(roof, readingEv.Inverter)
	require.Equal(reading, readingEv.Reading)

	require.Nil(ReadingToUpdateEvents(roof, domain.Reading{Kind: "voltage"}))
}
