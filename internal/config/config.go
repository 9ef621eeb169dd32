// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Gateways []GatewayConfig `mapstructure:"gateways"`
	Log      LogConfig       `mapstructure:"log"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Journal  JournalConfig   `mapstructure:"journal"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Address string `mapstructure:"address"` // e.g. ":9102", empty disables
}

// JournalConfig defines where crossing frames are recorded
type JournalConfig struct {
	Type     string `mapstructure:"type"`     // "none", "memory", "file", "mmap", "sqlite"
	Path     string `mapstructure:"path"`     // File path or DSN
	Capacity int    `mapstructure:"capacity"` // Ring size for "memory" and "mmap"
}

// GatewayConfig defines a single gateway instance
type GatewayConfig struct {
	Name        string             `mapstructure:"name"`
	Upstreams   []UpstreamConfig   `mapstructure:"upstreams"`
	Downstreams []DownstreamConfig `mapstructure:"downstreams"`
}

// UpstreamConfig defines a master connecting to the gateway
type UpstreamConfig struct {
	Type   string       `mapstructure:"type"`   // "tcp", "ascii", "ascii-tcp"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "tcp" or "ascii-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "ascii"; codec settings for "ascii-tcp"
}

// DownstreamConfig defines the slave the gateway connects to
type DownstreamConfig struct {
	Name     string       `mapstructure:"name"`      // Optional name for logging
	Type     string       `mapstructure:"type"`      // "tcp", "ascii", "ascii-tcp"
	SlaveIDs string       `mapstructure:"slave_ids"` // Routing rules: "1", "1,2", "1-10"
	Tcp      TcpConfig    `mapstructure:"tcp"`       // Used if Type is "tcp" or "ascii-tcp"
	Serial   SerialConfig `mapstructure:"serial"`    // Used if Type is "ascii"; codec settings for "ascii-tcp"
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "0.0.0.0:502" or "192.168.1.100:502"
	Timeout time.Duration `mapstructure:"timeout"`
}

// SerialConfig defines the serial line carrying ASCII frames
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	Driver    string        `mapstructure:"driver"` // "gridx" (default) or "bugst"
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`    // Response wait time
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// Codec
	FrameTimeout time.Duration `mapstructure:"frame_timeout"` // Start character to last byte
	PollInterval time.Duration `mapstructure:"poll_interval"` // Codec polling period
	StrictHex    bool          `mapstructure:"strict_hex"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbusascii/")
		v.AddConfigPath("$HOME/.modbusascii")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("journal.type", "none")
	v.SetDefault("journal.capacity", 1024)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Gateways {
		gw := &config.Gateways[i]

		for j := range gw.Downstreams {
			FixupSerial(&gw.Downstreams[j].Serial)
		}

		for j := range gw.Upstreams {
			FixupSerial(&gw.Upstreams[j].Serial)
		}
	}

	return &config, nil
}

// FixupSerial fills the serial defaults of a MODBUS ASCII line.
func FixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "E"
	}
	if s.Driver == "" {
		s.Driver = "gridx"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 9600
	}
	// ASCII mode characters are 7 bits
	if s.DataBits == 0 {
		s.DataBits = 7
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
	if s.FrameTimeout == 0 {
		s.FrameTimeout = time.Second
	}
	if s.PollInterval == 0 {
		s.PollInterval = 2 * time.Millisecond
	}
}
