// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/modbus"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/ascii"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 2, 15, 4, 5, 123456789, time.UTC)

func sampleEntries() []Entry {
	return []Entry{
		{Time: base, Device: "/dev/ttyUSB0", Direction: "tx", SlaveID: 0x11, Function: 0x03, Data: []byte{0x00, 0x6B, 0x00, 0x03}},
		{Time: base.Add(time.Millisecond), Device: "/dev/ttyUSB0", Direction: "rx", SlaveID: 0x11, Function: 0x03, Data: []byte{0x02, 0x00, 0x2A}},
		{Time: base.Add(2 * time.Millisecond), Device: "line 2", Direction: "rx", Err: "modbus ascii: checksum mismatch"},
	}
}

func requireEntries(t *testing.T, want, got []Entry) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.True(t, want[i].Time.Equal(got[i].Time), "entry %d time %v, want %v", i, got[i].Time, want[i].Time)
		require.Equal(t, want[i].Device, got[i].Device, "entry %d", i)
		require.Equal(t, want[i].Direction, got[i].Direction, "entry %d", i)
		require.Equal(t, want[i].SlaveID, got[i].SlaveID, "entry %d", i)
		require.Equal(t, want[i].Function, got[i].Function, "entry %d", i)
		require.Equal(t, want[i].Data, got[i].Data, "entry %d", i)
		require.Equal(t, want[i].Err, got[i].Err, "entry %d", i)
	}
}

func TestRecorders(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.JournalConfig
	}{
		{"memory", config.JournalConfig{Type: "memory", Capacity: 8}},
		{"file", config.JournalConfig{Type: "file", Path: filepath.Join(dir, "frames.log")}},
		{"mmap", config.JournalConfig{Type: "mmap", Path: filepath.Join(dir, "frames.ring"), Capacity: 8}},
		{"sqlite", config.JournalConfig{Type: "sqlite", Path: filepath.Join(dir, "frames.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Open(tt.cfg)
			require.NoError(t, err)
			defer r.Close()

			want := sampleEntries()
			for _, e := range want {
				require.NoError(t, r.Record(e))
			}
			got, err := r.Entries()
			require.NoError(t, err)
			requireEntries(t, want, got)
		})
	}
}

func TestOpen(t *testing.T) {
	r, err := Open(config.JournalConfig{})
	require.NoError(t, err)
	require.IsType(t, Discard{}, r)
	require.NoError(t, r.Record(sampleEntries()[0]))

	_, err = Open(config.JournalConfig{Type: "kafka"})
	require.Error(t, err)

	_, err = Open(config.JournalConfig{Type: "file"})
	require.Error(t, err)
}

func TestMemoryRing(t *testing.T) {
	m := NewMemory(2)
	all := sampleEntries()
	for _, e := range all {
		require.NoError(t, m.Record(e))
	}
	got, err := m.Entries()
	require.NoError(t, err)
	requireEntries(t, all[1:], got)
}

func TestMmapRingSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.ring")
	all := sampleEntries()

	ms, err := OpenMmap(path, 2)
	require.NoError(t, err)
	for _, e := range all {
		require.NoError(t, ms.Record(e))
	}
	require.NoError(t, ms.Close())
	require.ErrorIs(t, ms.Record(all[0]), os.ErrClosed)

	ms, err = OpenMmap(path, 2)
	require.NoError(t, err)
	got, err := ms.Entries()
	require.NoError(t, err)
	requireEntries(t, all[1:], got)
	require.NoError(t, ms.Close())

	// A different capacity reformats the ring.
	ms, err = OpenMmap(path, 4)
	require.NoError(t, err)
	defer ms.Close()
	got, err = ms.Entries()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.log")
	fs, err := OpenFile(path)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.Record(Entry{Time: base, Device: "com1", Direction: "rx", SlaveID: 0x11, Function: 0x03, Data: []byte{0x00, 0x0A}}))
	require.NoError(t, fs.Record(Entry{Time: base, Device: "com1", Direction: "tx", SlaveID: 0x11, Function: 0x03}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Equal(t, `2026-01-02T15:04:05.123456789Z "com1" rx :1103000AE2`+"\r", lines[0])
	require.Equal(t, `2026-01-02T15:04:05.123456789Z "com1" tx :1103EC`+"\r", lines[1])

	got, err := fs.Entries()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []byte{0x00, 0x0A}, got[0].Data)
	require.Empty(t, got[1].Data)
	require.Equal(t, byte(0x03), got[1].Function)
}

func TestFileRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.log")
	require.NoError(t, os.WriteFile(path, []byte(`2026-01-02T15:04:05Z "com1" rx :1103000AE3`+"\r\n"), 0644))

	fs, err := OpenFile(path)
	require.NoError(t, err)
	defer fs.Close()

	_, err = fs.Entries()
	require.ErrorIs(t, err, asciiframe.ErrChecksumMismatch)
}

func TestObserver(t *testing.T) {
	m := NewMemory(4)
	observe := Observer(m)

	observe(ascii.Event{
		Time:      base,
		Device:    "com1",
		Direction: ascii.Received,
		SlaveID:   0x11,
		Pdu:       modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0x00, 0x2A}},
	})
	observe(ascii.Event{Time: base, Device: "com1", Direction: ascii.Received, Err: errors.New("timeout")})

	got, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "rx", got[0].Direction)
	require.Equal(t, []byte{0x02, 0x00, 0x2A}, got[0].Data)
	require.Equal(t, "timeout", got[1].Err)
}

func BenchmarkMemoryRecord(b *testing.B) {
	m := NewMemory(DefaultCapacity)
	e := sampleEntries()[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Record(e)
	}
}

func BenchmarkMmapRecord(b *testing.B) {
	ms, err := OpenMmap(filepath.Join(b.TempDir(), "bench.ring"), DefaultCapacity)
	if err != nil {
		b.Fatalf("Failed to open mmap journal: %v", err)
	}
	defer ms.Close()

	e := sampleEntries()[0]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms.Record(e)
	}
}
