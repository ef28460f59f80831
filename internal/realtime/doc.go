// Package realtime implements the ChainWatch realtime notification client.
//
// A Client owns a single WebSocket connection to the notification feed and
// exposes a subscribe/send/state-query surface to the rest of the process:
//
//   - Connect/Disconnect drive the connection state machine
//     (Disconnected, Connecting, Connected, Error)
//   - a bearer-token handshake upgrades the raw socket into an authorized
//     session
//   - a heartbeat ping keeps the link alive while connected
//   - abnormal closes trigger bounded exponential-backoff reconnection
//   - messages sent while the socket is not open are queued and flushed in
//     FIFO order once the connection is ready
//   - inbound frames are decoded and fanned out to subscribers by type
//
// The heartbeat only proves liveness to the server; the client does not
// enforce a pong timeout. Lifecycle failures are surfaced through the state
// stream and logging, not through errors on the public surface.
package realtime
