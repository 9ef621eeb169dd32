// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
)

// Mmap keeps the most recent entries in a ring stored in a memory-mapped
// file, so the journal survives a restart.
//
// Layout (little endian):
//   - Header: 64 bytes. Magic "MBAJ" (0), version (4), capacity uint32 (8),
//     slot size uint32 (12), entries written uint64 (16).
//   - Slots: capacity * slotSize bytes. Time unix nano int64 (0), direction (8),
//     slave (9), function (10), payload length (11), device (12, 32 bytes),
//     error (44, 64 bytes), payload (108, MaxDataSize bytes).
//
// Device and error text longer than their fields is truncated.
type Mmap struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	data     mmap.MMap
	capacity int
}

const (
	mmapMagic   = "MBAJ"
	mmapVersion = 1

	headerSize = 64

	slotTime     = 0
	slotDir      = 8
	slotSlave    = 9
	slotFunction = 10
	slotLength   = 11
	slotDevice   = 12
	slotErr      = slotDevice + 32
	slotData     = slotErr + 64
	slotSize     = slotData + asciiframe.MaxDataSize
)

// OpenMmap maps path, creating or reformatting it when its ring does not
// match capacity.
func OpenMmap(path string, capacity int) (*Mmap, error) {
	if path == "" {
		return nil, errors.New("journal mmap path is empty")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	totalSize := int64(headerSize + capacity*slotSize)

	// Open file, creating if necessary
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != totalSize {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	ms := &Mmap{path: path, file: f, data: data, capacity: capacity}
	if !ms.formatted() {
		ms.format()
	}
	return ms, nil
}

func (ms *Mmap) formatted() bool {
	h := ms.data[:headerSize]
	return string(h[0:4]) == mmapMagic &&
		h[4] == mmapVersion &&
		binary.LittleEndian.Uint32(h[8:12]) == uint32(ms.capacity) &&
		binary.LittleEndian.Uint32(h[12:16]) == slotSize
}

func (ms *Mmap) format() {
	clear(ms.data)
	h := ms.data[:headerSize]
	copy(h[0:4], mmapMagic)
	h[4] = mmapVersion
	binary.LittleEndian.PutUint32(h[8:12], uint32(ms.capacity))
	binary.LittleEndian.PutUint32(h[12:16], slotSize)
}

func (ms *Mmap) written() uint64 {
	return binary.LittleEndian.Uint64(ms.data[16:24])
}

func (ms *Mmap) slot(i uint64) []byte {
	off := headerSize + int(i%uint64(ms.capacity))*slotSize
	return ms.data[off : off+slotSize]
}

// Record stores e in the next slot and flushes the mapping.
func (ms *Mmap) Record(e Entry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return os.ErrClosed
	}

	n := ms.written()
	s := ms.slot(n)
	clear(s)

	binary.LittleEndian.PutUint64(s[slotTime:], uint64(e.Time.UnixNano()))
	if e.Direction == "tx" {
		s[slotDir] = 1
	}
	s[slotSlave] = e.SlaveID
	s[slotFunction] = e.Function
	s[slotLength] = byte(copy(s[slotData:slotSize], e.Data))
	copy(s[slotDevice:slotErr], e.Device)
	copy(s[slotErr:slotData], e.Err)

	binary.LittleEndian.PutUint64(ms.data[16:24], n+1)

	if err := ms.data.Flush(); err != nil {
		return fmt.Errorf("failed to flush mmap: %w", err)
	}
	return nil
}

func (ms *Mmap) Entries() ([]Entry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return nil, os.ErrClosed
	}

	n := ms.written()
	first := uint64(0)
	if n > uint64(ms.capacity) {
		first = n - uint64(ms.capacity)
	}

	entries := make([]Entry, 0, n-first)
	for i := first; i < n; i++ {
		s := ms.slot(i)
		e := Entry{
			Time:      time.Unix(0, int64(binary.LittleEndian.Uint64(s[slotTime:]))),
			Direction: "rx",
			SlaveID:   s[slotSlave],
			Function:  s[slotFunction],
			Device:    string(bytes.TrimRight(s[slotDevice:slotErr], "\x00")),
			Err:       string(bytes.TrimRight(s[slotErr:slotData], "\x00")),
		}
		if s[slotDir] == 1 {
			e.Direction = "tx"
		}
		length := int(s[slotLength])
		e.Data = append([]byte(nil), s[slotData:slotData+length]...)
		entries = append(entries, e)
	}
	return entries, nil
}

// Close unmaps and closes the file.
func (ms *Mmap) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
