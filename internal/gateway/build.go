// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"fmt"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/transport"
)

// Factory creates the transports named by a gateway configuration.
type Factory struct {
	Upstream   func(cfg config.UpstreamConfig) (transport.Upstream, error)
	Downstream func(cfg config.DownstreamConfig) (transport.Downstream, error)
}

// Build assembles a gateway from its configuration. A downstream without
// slave_ids becomes the default route.
func Build(cfg config.GatewayConfig, f Factory) (*Gateway, error) {
	routes := make(map[byte]transport.Downstream)
	var defaultRoute transport.Downstream

	for _, dsCfg := range cfg.Downstreams {
		ds, err := f.Downstream(dsCfg)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: downstream %q: %w", cfg.Name, dsCfg.Name, err)
		}
		if dsCfg.SlaveIDs == "" {
			if defaultRoute != nil {
				return nil, fmt.Errorf("gateway %s: more than one default downstream", cfg.Name)
			}
			defaultRoute = ds
			continue
		}
		ids, err := ParseSlaveIDs(dsCfg.SlaveIDs)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: downstream %q: %w", cfg.Name, dsCfg.Name, err)
		}
		for _, id := range ids {
			if _, dup := routes[id]; dup {
				return nil, fmt.Errorf("gateway %s: slave id %d routed twice", cfg.Name, id)
			}
			routes[id] = ds
		}
	}

	var upstreams []transport.Upstream
	for i, usCfg := range cfg.Upstreams {
		us, err := f.Upstream(usCfg)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: upstream %d: %w", cfg.Name, i, err)
		}
		upstreams = append(upstreams, us)
	}
	if len(upstreams) == 0 {
		return nil, fmt.Errorf("gateway %s: no upstreams", cfg.Name)
	}

	return NewGateway(cfg.Name, upstreams, routes, defaultRoute), nil
}
