// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package journal records the frames that cross the gateway's ASCII lines.
package journal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/transport/ascii"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 1024

// Entry is one recorded frame, or one frame that failed to decode.
type Entry struct {
	Time      time.Time
	Device    string
	Direction string // "rx" or "tx"
	SlaveID   byte
	Function  byte
	Data      []byte
	Err       string
}

// Recorder defines the interface for persisting journal entries.
type Recorder interface {
	// Record appends an entry.
	Record(e Entry) error

	// Entries returns the retained entries, oldest first.
	Entries() ([]Entry, error)

	Close() error
}

// Open creates the recorder selected by cfg.
func Open(cfg config.JournalConfig) (Recorder, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	switch cfg.Type {
	case "", "none":
		return Discard{}, nil
	case "memory":
		return NewMemory(capacity), nil
	case "file":
		return OpenFile(cfg.Path)
	case "mmap":
		return OpenMmap(cfg.Path, capacity)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}

// FromEvent converts a link event into a journal entry.
func FromEvent(ev ascii.Event) Entry {
	e := Entry{
		Time:      ev.Time,
		Device:    ev.Device,
		Direction: string(ev.Direction),
		SlaveID:   ev.SlaveID,
		Function:  ev.Pdu.FunctionCode,
		Data:      append([]byte(nil), ev.Pdu.Data...),
	}
	if ev.Err != nil {
		e.Err = ev.Err.Error()
	}
	return e
}

// Observer returns a link observer that records every event into r.
func Observer(r Recorder) ascii.Observer {
	return func(ev ascii.Event) {
		if err := r.Record(FromEvent(ev)); err != nil {
			slog.Error("Failed to record frame", "device", ev.Device, "err", err)
		}
	}
}

// Discard is a recorder that keeps nothing.
type Discard struct{}

func (Discard) Record(Entry) error         { return nil }
func (Discard) Entries() ([]Entry, error) { return nil, nil }
func (Discard) Close() error              { return nil }
