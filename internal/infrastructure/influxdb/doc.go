// Package influxdb provides InfluxDB connectivity for Flockweigh Core.
//
// It wraps the official influxdb-client-go v2 library and records the
// history farm operators chart: calibration step decisions, heartbeat
// commands and operator actions, one point each, tagged by device serial.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series history
//	}
//	defer client.Close()
//
//	client.WriteCalibrationStep("7001", 2, 3, 0, "advance", time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write errors go to the SetOnError callback.
package influxdb
