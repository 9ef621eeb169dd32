// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Buffer is an in-memory Transport. ReadByte consumes bytes queued with
// Feed; WriteByte appends to the output until Limit bytes are buffered
// (zero means unlimited).
type Buffer struct {
	Limit int

	in  []byte
	out []byte
}

// Feed queues bytes for ReadByte.
func (b *Buffer) Feed(p ...byte) {
	b.in = append(b.in, p...)
}

// ReadByte implements ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	if len(b.in) == 0 {
		return 0, ErrWouldBlock
	}
	c := b.in[0]
	b.in = b.in[1:]
	return c, nil
}

// WriteByte implements ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	if b.Limit > 0 && len(b.out) >= b.Limit {
		return ErrWouldBlock
	}
	b.out = append(b.out, c)
	return nil
}

// Pending returns the number of queued input bytes.
func (b *Buffer) Pending() int { return len(b.in) }

// Bytes returns the written output.
func (b *Buffer) Bytes() []byte { return b.out }

// Drain returns the written output and clears it.
func (b *Buffer) Drain() []byte {
	p := b.out
	b.out = nil
	return p
}

// frozen is a clock that never advances; whole-buffer decoding cannot stall.
var frozen = ClockFunc(func() time.Duration { return 0 })

// AppendFrame appends the wire encoding of f with an n byte payload to dst.
// Unlike Write it accepts n == 0, which is a valid frame on the wire.
func AppendFrame(dst []byte, f *Frame, n int) ([]byte, error) {
	if n == 0 {
		return appendHeaderOnly(dst, f), nil
	}
	buf := &Buffer{out: dst}
	if _, err := New(buf).Write(f, n); err != nil {
		return dst, err
	}
	return buf.out, nil
}

func appendHeaderOnly(dst []byte, f *Frame) []byte {
	var lrc LRC
	lrc.Push(f.Address, f.Function)
	dst = append(dst, Start)
	for _, b := range [...]byte{f.Address, f.Function, lrc.Value()} {
		dst = append(dst, EncodeNibble(b>>4), EncodeNibble(b))
	}
	return append(dst, CR, LF)
}

// DecodeFrame decodes the first frame in raw into f and returns its payload
// length. Bytes before the start character are skipped.
func DecodeFrame(raw []byte, f *Frame) (int, error) {
	buf := &Buffer{in: raw}
	n, err := New(buf, WithClock(frozen)).Read(f)
	if errors.Is(err, ErrWouldBlock) {
		return 0, fmt.Errorf("modbus ascii: incomplete frame of %d bytes: %w", len(raw), io.ErrUnexpectedEOF)
	}
	return n, err
}
