// Package status serves the status and control surface of a run over HTTP.
//
// Routes:
//
//	GET  /status           run snapshot with every stage copy
//	GET  /status/{stage}   snapshots of one stage's copies
//	POST /pause            pause every copy
//	POST /resume           resume every copy
//	POST /stop             stop every copy, discarding rows in flight
//	POST /safestop         stop the source stages and let the rest drain
//	GET  /metrics          Prometheus metrics, when a gatherer is configured
//
// Snapshot routes never change run state.
package status
