// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import (
	"log/slog"
	"time"
)

// ByteReader is a non-blocking single byte source. ReadByte returns
// ErrWouldBlock when no byte is available.
type ByteReader interface {
	ReadByte() (byte, error)
}

// ByteWriter is a non-blocking single byte sink. WriteByte returns
// ErrWouldBlock when the byte cannot be accepted yet.
type ByteWriter interface {
	WriteByte(c byte) error
}

// Transport is the byte channel a Codec drives.
type Transport interface {
	ByteReader
	ByteWriter
}

// FaultHandler is called when the codec finds itself in a state it cannot
// reach under correct use. It is never called for protocol errors.
type FaultHandler func(op string, state State)

func logFault(op string, state State) {
	slog.Error("modbus ascii: unreachable state", "op", op, "state", state)
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock sets the tick source used for receive timeouts.
func WithClock(clock Clock) Option {
	return func(c *Codec) { c.clock = clock }
}

// WithTimeout sets the receive timeout ceiling.
func WithTimeout(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFaultHandler sets the hook for unreachable states.
func WithFaultHandler(h FaultHandler) Option {
	return func(c *Codec) { c.fault = h }
}

// WithStrictHex makes the reader reject characters that are not uppercase
// hex digits instead of leaving them to the checksum.
func WithStrictHex() Option {
	return func(c *Codec) { c.strict = true }
}

// rxProgress is the saved progress of a frame being received.
type rxProgress struct {
	state      State
	phase      nibblePhase
	headerLeft int
	dataIndex  int
	start      time.Duration
	pending    byte
	held       byte
	hasHeld    bool
	lrc        LRC
}

// txProgress is the saved progress of a frame being transmitted.
type txProgress struct {
	state      State
	phase      nibblePhase
	headerLeft int
	dataIndex  int
	trailer    int
	lrc        LRC
}

// Codec is a resumable MODBUS ASCII frame reader and writer bound to one
// transport. Read and Write never block: each call advances the frame as
// far as the transport allows and returns ErrWouldBlock when it cannot go
// further. Receive and transmit progress are kept apart, so a half-duplex
// caller may write a request and read the reply through one Codec.
//
// A Codec is not safe for concurrent use.
type Codec struct {
	transport Transport
	clock     Clock
	timeout   time.Duration
	fault     FaultHandler
	strict    bool

	rx rxProgress
	tx txProgress
}

// New returns a Codec driving t, ready for a fresh frame in each direction.
func New(t Transport, opts ...Option) *Codec {
	c := &Codec{
		clock:   MonotonicClock,
		timeout: DefaultTimeout,
		fault:   logFault,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Init(t)
	return c
}

// Init associates the codec with t and resets both directions to START.
func (c *Codec) Init(t Transport) {
	c.transport = t
	c.rx = rxProgress{}
	c.tx = txProgress{}
}

// Cancel discards any in-flight frame in both directions.
func (c *Codec) Cancel() {
	c.CancelRead()
	c.CancelWrite()
}

// CancelRead discards a partially received frame.
func (c *Codec) CancelRead() {
	c.rx.state = StateStart
}

// CancelWrite abandons a partially transmitted frame. The peer will see a
// truncated frame and drop it at its next start character.
func (c *Codec) CancelWrite() {
	c.tx.state = StateStart
}

// ReadState returns the receive phase.
func (c *Codec) ReadState() State { return c.rx.state }

// WriteState returns the transmit phase.
func (c *Codec) WriteState() State { return c.tx.state }

// Timeout returns the receive timeout ceiling.
func (c *Codec) Timeout() time.Duration { return c.timeout }

func (c *Codec) internalFault(op string, state State) error {
	if c.fault != nil {
		c.fault(op, state)
	}
	return ErrInternalFault
}
