// Package remote carries a row stream between stage copies running in
// different processes.
//
// The producer side is an Output. It opens a listening socket while its
// stage copy initializes, so the port is reserved before any row exists.
// Once the copy starts, a pump goroutine accepts the peer and drains the
// Output's local channel onto the connection. The consumer side is an
// Input: it dials lazily on the first read and decodes the stream into
// its own local channel. Stage copies only ever see local channels.
//
// The wire format is a sequence of msgpack frames: one schema frame, any
// number of row frames, and a done frame that marks the end of the stream.
// A connection that closes before the done frame is reported as an error.
//
// Teardown is idempotent. Errors raised while closing sockets are logged
// and swallowed.
package remote
