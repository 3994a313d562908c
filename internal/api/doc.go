// Package api implements the HTTP server for Flockweigh Core.
//
// It serves two very different audiences from one chi router:
//   - Weighing controllers poll /device/heartbeat, /device/calibration and
//     /device/config. Replies are text/plain, wrapped in @...@, and business
//     failures travel inside the payload rather than as 5xx statuses.
//   - The operator web UI uses the JSON API under /api/v1 to register
//     devices, follow and steer calibrations, queue resets and read device
//     history, and subscribes to live events over the /ws WebSocket.
//
// Prometheus metrics are exposed at /metrics; a JSON summary lives at
// /api/v1/metrics.
//
// The server follows the same lifecycle as the infrastructure clients:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
