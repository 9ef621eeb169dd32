// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

// Write advances the transmission of f with an n byte payload and returns
// n once the last character has been accepted by the transport. It returns
// ErrWouldBlock while the transport has no room. Unlike Read, Write has no
// timeout: a stalled transport keeps the frame pending until Cancel.
//
// f and n must stay the same for every call composing one frame.
func (c *Codec) Write(f *Frame, n int) (int, error) {
	if n < 1 || n > MaxDataSize {
		return 0, ErrInvalidArgument
	}

	for {
		var err error
		switch c.tx.state {
		case StateStart:
			err = c.writeStart()
		case StateAddrFunc:
			err = c.writeAddrFunc(f)
		case StateData:
			err = c.writeData(f, n)
		case StateEnd:
			var done bool
			done, err = c.writeEnd()
			if err == nil && done {
				return n, nil
			}
		default:
			state := c.tx.state
			c.tx.state = StateStart
			return 0, c.internalFault("write", state)
		}
		if err != nil {
			return 0, err
		}
	}
}

func (c *Codec) writeStart() error {
	if err := c.transport.WriteByte(Start); err != nil {
		return err
	}
	c.tx = txProgress{
		state:      StateAddrFunc,
		headerLeft: headerDigits,
	}
	return nil
}

func (c *Codec) writeAddrFunc(f *Frame) error {
	var ch byte
	switch c.tx.headerLeft {
	case 4:
		ch = EncodeNibble(f.Address >> 4)
	case 3:
		ch = EncodeNibble(f.Address)
	case 2:
		ch = EncodeNibble(f.Function >> 4)
	case 1:
		ch = EncodeNibble(f.Function)
	default:
		c.tx.state = StateStart
		return c.internalFault("write", StateAddrFunc)
	}

	if err := c.transport.WriteByte(ch); err != nil {
		return err
	}
	c.tx.headerLeft--
	if c.tx.headerLeft == 0 {
		c.tx.state = StateData
		c.tx.phase = nibbleHigh
		c.tx.dataIndex = 0
		c.tx.lrc.Reset().Push(f.Address, f.Function)
	}
	return nil
}

func (c *Codec) writeData(f *Frame, n int) error {
	if c.tx.dataIndex >= n {
		// n shrank in the middle of a frame
		c.tx.state = StateStart
		return ErrInvalidArgument
	}
	b := f.Data[c.tx.dataIndex]

	switch c.tx.phase {
	case nibbleHigh:
		if err := c.transport.WriteByte(EncodeNibble(b >> 4)); err != nil {
			return err
		}
		c.tx.phase = nibbleLow

	case nibbleLow:
		if err := c.transport.WriteByte(EncodeNibble(b)); err != nil {
			return err
		}
		c.tx.phase = nibbleHigh
		c.tx.lrc.Push(b)
		c.tx.dataIndex++
		if c.tx.dataIndex == n {
			c.tx.state = StateEnd
			c.tx.trailer = 0
		}

	default:
		c.tx.state = StateStart
		return c.internalFault("write", StateData)
	}
	return nil
}

func (c *Codec) writeEnd() (bool, error) {
	var ch byte
	switch c.tx.trailer {
	case 0:
		ch = EncodeNibble(c.tx.lrc.Value() >> 4)
	case 1:
		ch = EncodeNibble(c.tx.lrc.Value())
	case 2:
		ch = CR
	case 3:
		ch = LF
	default:
		c.tx.state = StateStart
		return false, c.internalFault("write", StateEnd)
	}

	if err := c.transport.WriteByte(ch); err != nil {
		return false, err
	}
	c.tx.trailer++
	if c.tx.trailer == trailerChars {
		c.tx.state = StateStart
		return true, nil
	}
	return false, nil
}
