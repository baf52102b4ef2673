// SPDX-License-Identifier: MIT

// Package transport delivers periodic statistics and analysis results to
// observers outside the engine.
package transport

// Transport sends processed data or events. Implementations are safe for
// concurrent use and never block the caller for long.
type Transport interface {
	Send(data any) error
	Close() error
}
