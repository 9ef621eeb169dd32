// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package journal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
)

// File appends entries to a text file, one per line, with each frame in
// its MODBUS ASCII wire form:
//
//	2026-01-02T15:04:05.000000000Z "/dev/ttyUSB0" rx :1103000AE2
//	2026-01-02T15:04:06.000000000Z "/dev/ttyUSB0" rx ! modbus ascii: checksum mismatch
type File struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  []byte
}

// OpenFile opens path for appending, creating it if necessary.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("journal file path is empty")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &File{path: path, file: f}, nil
}

func (fs *File) Record(e Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return os.ErrClosed
	}

	line := fs.buf[:0]
	line = e.Time.UTC().AppendFormat(line, time.RFC3339Nano)
	line = append(line, ' ')
	line = strconv.AppendQuote(line, e.Device)
	line = append(line, ' ')
	line = append(line, e.Direction...)
	line = append(line, ' ')

	if e.Err != "" {
		line = append(line, "! "...)
		line = append(line, strings.ReplaceAll(e.Err, "\n", " ")...)
		line = append(line, '\n')
	} else {
		var err error
		if line, err = appendWire(line, e); err != nil {
			return fmt.Errorf("failed to encode frame: %w", err)
		}
	}
	fs.buf = line

	if _, err := fs.file.Write(line); err != nil {
		return fmt.Errorf("failed to write journal file: %w", err)
	}
	return nil
}

// Entries reads the file back from the start.
func (fs *File) Entries() ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		e, err := parseLine(scanner.Text())
		if err != nil {
			return entries, fmt.Errorf("journal line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Close the file.
func (fs *File) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}

// appendWire appends the frame of e followed by CR LF.
func appendWire(dst []byte, e Entry) ([]byte, error) {
	var frame asciiframe.Frame
	frame.Address = e.SlaveID
	frame.Function = e.Function
	n, err := frame.SetPayload(e.Data)
	if err != nil {
		return dst, err
	}
	return asciiframe.AppendFrame(dst, &frame, n)
}

func parseLine(line string) (Entry, error) {
	var e Entry

	ts, rest, ok := strings.Cut(line, " ")
	if !ok {
		return e, errors.New("missing time")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return e, err
	}
	e.Time = t

	quoted, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return e, fmt.Errorf("bad device: %w", err)
	}
	if e.Device, err = strconv.Unquote(quoted); err != nil {
		return e, err
	}
	rest = strings.TrimPrefix(rest[len(quoted):], " ")

	dir, body, ok := strings.Cut(rest, " ")
	if !ok {
		return e, errors.New("missing frame")
	}
	e.Direction = dir

	if msg, isErr := strings.CutPrefix(body, "! "); isErr {
		e.Err = msg
		return e, nil
	}

	var frame asciiframe.Frame
	n, err := asciiframe.DecodeFrame([]byte(body+"\r\n"), &frame)
	if err != nil {
		return e, err
	}
	e.SlaveID = frame.Address
	e.Function = frame.Function
	e.Data = append([]byte(nil), frame.Payload(n)...)
	return e, nil
}
