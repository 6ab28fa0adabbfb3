package domain

import "time"

type MetricKind string

const (
	METRIC_POWER_NOW       MetricKind = "power_now"
	METRIC_LIFETIME_ENERGY MetricKind = "lifetime_energy"
	METRIC_TODAY_ENERGY    MetricKind = "today_energy"
)

// MetricKinds lists the metrics polled for every inverter, in polling order.
var MetricKinds = []MetricKind{METRIC_POWER_NOW, METRIC_LIFETIME_ENERGY, METRIC_TODAY_ENERGY}

// Inverter is a device discovered at startup. It never changes afterwards.
type Inverter struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// Reading is the latest value of one metric. Offline is set when the power
// metric fell back to zero because the inverter does not report.
type Reading struct {
	Kind    MetricKind `json:"metric"`
	Value   float64    `json:"value"`
	Offline bool       `json:"offline"`
	At      time.Time  `json:"at"`
}

type MetricInfo struct {
	Label       string
	Suffix      string
	Unit        string
	DeviceClass string
	StateClass  string
	Decimals    uint
}

var metricInfos = map[MetricKind]MetricInfo{
	METRIC_POWER_NOW: {
		Label:       "Power",
		Suffix:      "now",
		Unit:        "W",
		DeviceClass: DEVICE_CLASS_POWER,
		StateClass:  STATE_CLASS_MEASUREMENT,
		Decimals:    0,
	},
	METRIC_LIFETIME_ENERGY: {
		Label:       "All-Time Production",
		Suffix:      "lifetime",
		Unit:        "kWh",
		DeviceClass: DEVICE_CLASS_ENERGY,
		StateClass:  STATE_CLASS_TOTAL,
		Decimals:    3,
	},
	METRIC_TODAY_ENERGY: {
		Label:       "Today Production",
		Suffix:      "today",
		Unit:        "kWh",
		DeviceClass: DEVICE_CLASS_ENERGY,
		StateClass:  STATE_CLASS_TOTAL_INCREASING,
		Decimals:    3,
	},
}

func (k MetricKind) Info() (MetricInfo, bool) {
	info, ok := metricInfos[k]
	return info, ok
}

func (k MetricKind) Valid() bool {
	_, ok := metricInfos[k]
	return ok
}
