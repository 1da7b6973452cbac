package session

import "errors"

// Session-terminal error classes. All of them close the session exactly once
// and surface a single human-readable message to the client; none trigger
// automatic reconnection, the operator reconnects explicitly.
var (
	// ErrAuthentication covers bad bearer tokens and credentials rejected by
	// the remote host.
	ErrAuthentication = errors.New("authentication failed")
	// ErrResolution covers unknown hosts and missing or undecryptable
	// credentials.
	ErrResolution = errors.New("host or credential resolution failed")
	// ErrTransport covers network failures and remote link drops.
	ErrTransport = errors.New("remote link failed")
)

// WebSocket close codes sent to the client, chosen from the private-use
// range so clients can distinguish why the session ended.
const (
	CloseAuthFailure = 4001
	CloseNotFound    = 4004
	CloseIdleTimeout = 4408
	CloseInternal    = 4500
)
