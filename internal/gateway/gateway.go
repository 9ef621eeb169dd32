// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package gateway forwards PDUs from masters to the line serving the
// addressed slave.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ffutop/modbus-ascii/modbus"
	"github.com/ffutop/modbus-ascii/transport"
)

// Gateway ties a set of Upstreams (masters talking to us) to Downstreams
// (lines we talk to) through a slave ID routing table.
type Gateway struct {
	Name      string
	Upstreams []transport.Upstream
	// Routes maps a slave ID to the line serving it; IDs missing here
	// go to DefaultRoute, or are refused when it is nil.
	Routes         map[byte]transport.Downstream
	DefaultRoute   transport.Downstream
	RequestTimeout time.Duration
}

// Used when RequestTimeout is unset.
const defaultRequestTimeout = 2 * time.Second

// NewGateway creates a new Gateway instance
func NewGateway(name string, upstreams []transport.Upstream, routes map[byte]transport.Downstream, defaultRoute transport.Downstream) *Gateway {
	return &Gateway{
		Name:         name,
		Upstreams:    upstreams,
		Routes:       routes,
		DefaultRoute: defaultRoute,
	}
}

// ParseSlaveIDs expands a routing rule such as "1,2,5-10" into slave IDs.
// Empty items are ignored.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(item, "-")
		if !isRange {
			hi = lo
		}
		first, err := parseSlaveID(lo)
		if err != nil {
			return nil, err
		}
		last, err := parseSlaveID(hi)
		if err != nil {
			return nil, err
		}
		if first > last {
			return nil, fmt.Errorf("slave id range %q runs backwards", item)
		}
		for id := first; id <= last; id++ {
			ids = append(ids, byte(id))
		}
	}
	return ids, nil
}

func parseSlaveID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid slave id %q: %w", s, err)
	}
	if id < 0 || id > 255 {
		return 0, fmt.Errorf("slave id %d out of range 0-255", id)
	}
	return id, nil
}

// downstreams lists every distinct line, a line serving several IDs once.
func (g *Gateway) downstreams() []transport.Downstream {
	seen := make(map[transport.Downstream]bool)
	var lines []transport.Downstream
	add := func(ds transport.Downstream) {
		if ds != nil && !seen[ds] {
			seen[ds] = true
			lines = append(lines, ds)
		}
	}
	for _, ds := range g.Routes {
		add(ds)
	}
	add(g.DefaultRoute)
	return lines
}

// Start opens the downstream lines, serves every upstream and blocks until
// ctx is done, then closes everything.
func (g *Gateway) Start(ctx context.Context) error {
	lines := g.downstreams()
	for _, ds := range lines {
		// a line that is down now is retried on its first request
		if err := ds.Connect(ctx); err != nil {
			slog.Warn("Downstream not reachable yet", "gateway", g.Name, "err", err)
		}
	}

	var wg sync.WaitGroup
	for i, us := range g.Upstreams {
		wg.Add(1)
		go func(idx int, us transport.Upstream) {
			defer wg.Done()
			slog.Info("Serving upstream", "gateway", g.Name, "index", idx)
			if err := us.Start(ctx, g.handleRequest); err != nil {
				slog.Error("Upstream stopped", "gateway", g.Name, "index", idx, "err", err)
			}
		}(i, us)
	}

	<-ctx.Done()

	for _, us := range g.Upstreams {
		us.Close()
	}
	for _, ds := range lines {
		ds.Close()
	}
	wg.Wait()
	return nil
}

func (g *Gateway) route(slaveID byte) transport.Downstream {
	if ds, ok := g.Routes[slaveID]; ok {
		return ds
	}
	return g.DefaultRoute
}

// handleRequest forwards one request. It never fails: a missing route or a
// silent line is answered with a gateway exception on the master's behalf.
func (g *Gateway) handleRequest(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	target := g.route(slaveID)
	if target == nil {
		slog.Warn("No line serves slave", "gateway", g.Name, "slaveID", slaveID)
		return modbus.Exception(pdu.FunctionCode, modbus.ExceptionGatewayPathUnavailable), nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()

	resp, err := target.Send(ctx, slaveID, pdu)
	if err != nil {
		slog.Error("Slave did not answer, replying with exception", "gateway", g.Name, "slaveID", slaveID, "func", pdu.FunctionCode, "err", err)
		return modbus.Exception(pdu.FunctionCode, modbus.ExceptionGatewayTargetFailed), nil
	}
	return resp, nil
}

func (g *Gateway) timeout() time.Duration {
	if g.RequestTimeout > 0 {
		return g.RequestTimeout
	}
	return defaultRequestTimeout
}
