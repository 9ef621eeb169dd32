// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics exports Prometheus counters for the frames moved on ASCII lines.
package metrics

import (
	"context"
	"errors"
	"net/http"

	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/ascii"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FrameCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbus_ascii_frames_total",
		Help: "The total number of frames read or written per device",
	}, []string{"device", "direction", "status"})

	ErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbus_ascii_errors_total",
		Help: "The total number of frame errors per device",
	}, []string{"device", "type"})
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ObserveRead counts a received frame, or a frame lost with err.
func ObserveRead(device string, err error) {
	observe(device, string(ascii.Received), err)
}

// ObserveWrite counts a sent frame, or a failed send.
func ObserveWrite(device string, err error) {
	observe(device, string(ascii.Sent), err)
}

func observe(device, direction string, err error) {
	if err == nil {
		FrameCount.WithLabelValues(device, direction, StatusSuccess).Inc()
		return
	}
	FrameCount.WithLabelValues(device, direction, StatusFailed).Inc()
	ErrorCount.WithLabelValues(device, ErrorType(err)).Inc()
}

// ErrorType names the class of err for the type label.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, asciiframe.ErrTimeout):
		return "timeout"
	case errors.Is(err, asciiframe.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, asciiframe.ErrInvalidDigit):
		return "invalid_digit"
	case errors.Is(err, asciiframe.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, asciiframe.ErrInternalFault):
		return "internal"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ascii.ErrRequestTimedOut):
		return "no_response"
	default:
		return "io"
	}
}

// Observer returns a link observer feeding the counters.
func Observer() ascii.Observer {
	return func(ev ascii.Event) {
		if ev.Direction == ascii.Sent {
			ObserveWrite(ev.Device, ev.Err)
			return
		}
		ObserveRead(ev.Device, ev.Err)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
