// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite stores entries in the `modbus_frames` table of a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and its schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, errors.New("journal sqlite path is empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS modbus_frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time INTEGER NOT NULL,
		device TEXT NOT NULL,
		direction TEXT NOT NULL,
		slave_id INTEGER,
		function INTEGER,
		data BLOB,
		err TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_frames_device_time ON modbus_frames(device, time);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLite) Record(e Entry) error {
	query := `INSERT INTO modbus_frames (time, device, direction, slave_id, function, data, err) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, e.Time.UnixNano(), e.Device, e.Direction, int(e.SlaveID), int(e.Function), e.Data, e.Err)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

func (s *SQLite) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT time, device, direction, slave_id, function, data, err FROM modbus_frames ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			ts              int64
			slave, function int
			e               Entry
		)
		if err := rows.Scan(&ts, &e.Device, &e.Direction, &slave, &function, &e.Data, &e.Err); err != nil {
			return entries, err
		}
		e.Time = time.Unix(0, ts)
		e.SlaveID = byte(slave)
		e.Function = byte(function)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
