// Package gateway provides an HTTP client for the flap gateway's REST API.
//
// # Overview
//
// The gateway terminates HTTP and relays commands to flap units over a slow
// secondary bus. Reads return the gateway's cached view of every unit; writes
// return as soon as the gateway has queued the command, before any unit has
// physically applied it. Callers that need to observe a write must wait and
// read again (see the commit package).
//
// # Endpoints
//
//	GET  /unit     {"avrs":[...], "esp":{"currentMillis":N}}
//	POST /unit     [{"unitAddr":..,"offset":..,"magneticZeroPositionLetterIndex":..}]
//	GET  /offset   [o1, o2, ...]            (older firmware)
//	POST /offset   {"unit":..,"offset":..}   (older firmware)
//	GET  /clock    {"clock":"..."}
//	GET  /meta     {"chipId":"..."}
//	GET|POST /main, /wifi, /misc  setting bags
//	POST /restart  {}
//
// Which unit pair is used is chosen once per client with an Endpoint.
//
// # Errors
//
// Requests that never got a response, and reads answered with a failure
// status, return *TransportError. Writes answered with a failure status
// return *CommitRejected. Malformed snapshot payloads return
// *device.DecodeError. Match them with errors.As.
package gateway
