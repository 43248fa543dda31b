// Package influxdb mirrors device readings into InfluxDB v2.
//
// The relational store is the system of record; the mirror gives
// dashboards a time-series copy, one device_reading point per reading.
//
//	m, err := influxdb.Connect(ctx, cfg.InfluxDB, logger)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror not configured
//	}
//	defer m.Close()
//
//	m.WriteReading(reading)
package influxdb
