// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync/atomic"

	"rtbuffer/internal/log"
)

// LoggingTransport writes every message to the debug log. It is used when
// no network transport is configured.
type LoggingTransport struct {
	log  *log.Logger
	sent atomic.Uint64
}

func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: log.For("transport")}
	lt.log.Infof("using logging transport")
	return lt
}

// Send logs data as JSON. Data that cannot be encoded is logged with %+v.
func (lt *LoggingTransport) Send(data any) error {
	lt.sent.Add(1)
	if log.GetLevel() > log.LevelDebug {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		lt.log.Debugf("%T: %+v (%v)", data, data, err)
		return nil
	}
	lt.log.Debugf("%s", raw)
	return nil
}

// Sent returns the number of messages passed to Send.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.sent.Load()
}

func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("closed after %d messages", lt.sent.Load())
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
