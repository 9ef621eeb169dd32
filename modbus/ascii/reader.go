// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

// Read advances the reception of one frame into f and returns the payload
// length once the frame is complete. It returns ErrWouldBlock while the
// frame is incomplete, ErrTimeout when a started frame stalls past the
// timeout and ErrChecksumMismatch for a corrupted frame. After any result
// other than ErrWouldBlock the next call starts on a fresh frame.
//
// f must be the same Frame for every call composing one frame.
func (c *Codec) Read(f *Frame) (int, error) {
	for {
		var err error
		switch c.rx.state {
		case StateStart:
			err = c.readStart()
		case StateAddrFunc:
			err = c.readAddrFunc(f)
		case StateData:
			err = c.readData(f)
		case StateEnd:
			return c.readEnd()
		default:
			state := c.rx.state
			c.rx.state = StateStart
			return 0, c.internalFault("read", state)
		}
		if err != nil {
			return 0, err
		}
	}
}

// checkTimeout abandons the frame when it has run past the ceiling.
func (c *Codec) checkTimeout() error {
	if expired(c.clock, c.rx.start, c.timeout) {
		c.rx.state = StateStart
		return ErrTimeout
	}
	return nil
}

func (c *Codec) readStart() error {
	ch, err := c.transport.ReadByte()
	if err != nil {
		return err
	}
	// anything before the start character is line noise
	if ch != Start {
		return nil
	}
	c.rx = rxProgress{
		state:      StateAddrFunc,
		start:      c.clock.Now(),
		headerLeft: headerDigits,
	}
	return nil
}

func (c *Codec) readAddrFunc(f *Frame) error {
	if err := c.checkTimeout(); err != nil {
		return err
	}
	ch, err := c.transport.ReadByte()
	if err != nil {
		return err
	}
	if c.strict && !ValidHexDigit(ch) {
		c.rx.state = StateStart
		return ErrInvalidDigit
	}

	v := DecodeNibble(ch)
	switch c.rx.headerLeft {
	case 4:
		f.Address = v << 4
	case 3:
		f.Address |= v
	case 2:
		f.Function = v << 4
	case 1:
		f.Function |= v
	default:
		c.rx.state = StateStart
		return c.internalFault("read", StateAddrFunc)
	}

	c.rx.headerLeft--
	if c.rx.headerLeft == 0 {
		c.rx.state = StateData
		c.rx.phase = nibbleHigh
		c.rx.dataIndex = 0
		c.rx.hasHeld = false
		c.rx.lrc.Reset().Push(f.Address, f.Function)
	}
	return nil
}

func (c *Codec) readData(f *Frame) error {
	if err := c.checkTimeout(); err != nil {
		return err
	}
	ch, err := c.transport.ReadByte()
	if err != nil {
		return err
	}
	if ch == CR {
		c.rx.state = StateEnd
		return nil
	}
	if c.strict && !ValidHexDigit(ch) {
		c.rx.state = StateStart
		return ErrInvalidDigit
	}

	switch c.rx.phase {
	case nibbleHigh:
		c.rx.pending = DecodeNibble(ch) << 4
		c.rx.phase = nibbleLow

	case nibbleLow:
		b := c.rx.pending | DecodeNibble(ch)
		c.rx.phase = nibbleHigh
		// The last byte before CR is the checksum, so a decoded byte is
		// held back until the next one proves it is payload.
		if c.rx.hasHeld {
			if c.rx.dataIndex >= MaxDataSize {
				// Oversized frame: drop it without touching f and
				// wait for the next start character.
				c.rx.state = StateStart
				return ErrWouldBlock
			}
			f.Data[c.rx.dataIndex] = c.rx.held
			c.rx.dataIndex++
		}
		c.rx.held = b
		c.rx.hasHeld = true
		c.rx.lrc.Push(b)

	default:
		c.rx.state = StateStart
		return c.internalFault("read", StateData)
	}
	return nil
}

func (c *Codec) readEnd() (int, error) {
	if err := c.checkTimeout(); err != nil {
		return 0, err
	}
	// LF, not checked
	if _, err := c.transport.ReadByte(); err != nil {
		return 0, err
	}
	c.rx.state = StateStart

	if verifyLRC && (!c.rx.hasHeld || c.rx.lrc.Sum() != 0) {
		return 0, ErrChecksumMismatch
	}
	return c.rx.dataIndex, nil
}
