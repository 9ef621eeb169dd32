// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/ascii"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{asciiframe.ErrTimeout, "timeout"},
		{fmt.Errorf("frame: %w", asciiframe.ErrChecksumMismatch), "checksum"},
		{asciiframe.ErrInvalidDigit, "invalid_digit"},
		{asciiframe.ErrInvalidArgument, "invalid_argument"},
		{asciiframe.ErrInternalFault, "internal"},
		{context.DeadlineExceeded, "no_response"},
		{ascii.ErrRequestTimedOut, "no_response"},
		{io.ErrClosedPipe, "io"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ErrorType(tt.err), "%v", tt.err)
	}
}

func TestObserve(t *testing.T) {
	ObserveRead("test-read", nil)
	ObserveRead("test-read", asciiframe.ErrChecksumMismatch)
	ObserveWrite("test-read", nil)

	require.Equal(t, 1.0, testutil.ToFloat64(FrameCount.WithLabelValues("test-read", "rx", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(FrameCount.WithLabelValues("test-read", "rx", StatusFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(FrameCount.WithLabelValues("test-read", "tx", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(ErrorCount.WithLabelValues("test-read", "checksum")))

	observe := Observer()
	observe(ascii.Event{Device: "test-observer", Direction: ascii.Sent, Err: errors.New("broken pipe")})
	require.Equal(t, 1.0, testutil.ToFloat64(ErrorCount.WithLabelValues("test-observer", "io")))
}

func TestHandler(t *testing.T) {
	ObserveRead("test-handler", nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `modbus_ascii_frames_total{device="test-handler",direction="rx",status="success"} 1`))
}

func TestObserver_Direction(t *testing.T) {
	observe := Observer()
	observe(ascii.Event{Device: "test-direction", Direction: ascii.Sent})
	observe(ascii.Event{Device: "test-direction", Direction: ascii.Received})
	observe(ascii.Event{Device: "test-direction", Direction: ascii.Received, Err: asciiframe.ErrTimeout})

	require.Equal(t, 1.0, testutil.ToFloat64(FrameCount.WithLabelValues("test-direction", "tx", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(FrameCount.WithLabelValues("test-direction", "rx", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(FrameCount.WithLabelValues("test-direction", "rx", StatusFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(ErrorCount.WithLabelValues("test-direction", "timeout")))
}
