package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/apsystems2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	MANUFACTURER     = "APsystems"
	UNIQUE_ID_PREFIX = "apsystemsapi"
	ICON_REFRESH     = "mdi:refresh"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("apsystems_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: MANUFACTURER,
		Model:        "EMA cloud bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("APsystems bridge %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(inverter Inverter, bridge Device) Device {
	return Device{
		Id:           fmt.Sprintf("apsystems_inverter_%s", inverter.Id),
		Manufacturer: MANUFACTURER,
		Model:        "Inverter",
		Name:         fmt.Sprintf("APsystems %s", inverter.Name),
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// MetricUniqueId is the entity id of one metric, also used as its state topic
// id.
func MetricUniqueId(inverterId string, kind MetricKind) string {
	info, _ := kind.Info()
	return fmt.Sprintf("%s_%s_%s", UNIQUE_ID_PREFIX, inverterId, info.Suffix)
}

func MetricName(inverter Inverter, kind MetricKind) string {
	info, _ := kind.Info()
	return fmt.Sprintf("APsystems %s %s", inverter.Name, info.Label)
}

// InverterSensors returns the three metric sensors. Only the first one carries
// the full device description.
func InverterSensors(inverterDevice Device, inverter Inverter) []GenericSensor {
	var sensors []GenericSensor
	for i, kind := range MetricKinds {
		info, _ := kind.Info()
		dev := inverterDevice
		if i > 0 {
			dev = IdDevice(inverterDevice)
		}
		uid := MetricUniqueId(inverter.Id, kind)
		sensors = append(sensors, GenericSensor{
			Device:            dev,
			Id:                uid,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              MetricName(inverter, kind),
			UniqueId:          uid,
			UnitOfMeasurement: info.Unit,
			StateClass:        info.StateClass,
			DeviceClass:       info.DeviceClass,
			Decimals:          info.Decimals,
		})
	}
	return sensors
}

func InverterButtons(inverterDevice Device, inverter Inverter) []GenericButton {
	return []GenericButton{{
		Device:   IdDevice(inverterDevice),
		Id:       inverter.Id,
		Name:     fmt.Sprintf("APsystems %s Refresh", inverter.Name),
		UniqueId: fmt.Sprintf("%s_%s_refresh", UNIQUE_ID_PREFIX, inverter.Id),
		Icon:     ICON_REFRESH,
	}}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func uniqueId(deviceId, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:6]
}
