// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command mbascii talks MODBUS ASCII on a serial line and converts frames
// to and from their wire form.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/internal/journal"
	"github.com/ffutop/modbus-ascii/modbus"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/ascii"
)

var (
	serialCfg  config.SerialConfig
	verbose    bool
	recordPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mbascii",
		Short:         "MODBUS ASCII line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newSendCmd(),
		newMonitorCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
	)
	return rootCmd
}

// serialFlags registers the line settings shared by send and monitor.
func serialFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&serialCfg.Device, "device", "d", "/dev/ttyUSB0", "serial port device name")
	fs.StringVar(&serialCfg.Driver, "driver", "gridx", "serial driver (gridx, bugst)")
	fs.IntVarP(&serialCfg.BaudRate, "baud", "b", 9600, "serial port speed")
	fs.IntVar(&serialCfg.DataBits, "data-bits", 7, "data bits")
	fs.StringVar(&serialCfg.Parity, "parity", "E", "parity (N, E, O)")
	fs.IntVar(&serialCfg.StopBits, "stop-bits", 1, "stop bits")
	fs.DurationVarP(&serialCfg.Timeout, "timeout", "t", 0, "response wait time")
	fs.DurationVar(&serialCfg.FrameTimeout, "frame-timeout", 0, "longest gap from start character to end of frame")
	fs.BoolVar(&serialCfg.StrictHex, "strict", false, "reject frames with non-hex characters")
	fs.BoolVar(&serialCfg.RS485, "rs485", false, "enable RS485 mode")
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <slave> <function> [hexdata]",
		Short: "Send one request and print the response",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slaveID, pdu, err := parsePDU(args)
			if err != nil {
				return err
			}

			client := ascii.NewClient(serialCfg)
			defer client.Close()

			ctx, cancel := signalContext()
			defer cancel()

			resp, err := client.Send(ctx, slaveID, pdu)
			if err != nil {
				return err
			}
			if slaveID == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "broadcast sent")
				return nil
			}
			printPDU(cmd.OutOrStdout(), slaveID, resp)
			return nil
		},
	}
	serialFlags(cmd.Flags())
	return cmd
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print every frame seen on the line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			recorder, err := journal.Open(journalConfig())
			if err != nil {
				return err
			}
			defer recorder.Close()
			record := journal.Observer(recorder)

			m := ascii.NewMonitor(serialCfg)
			m.Observer = func(ev ascii.Event) {
				record(ev)
				if ev.Err != nil {
					fmt.Fprintf(out, "%s %s error: %v\n", ev.Time.Format("15:04:05.000"), ev.Device, ev.Err)
					return
				}
				fmt.Fprintf(out, "%s %s ", ev.Time.Format("15:04:05.000"), ev.Device)
				printPDU(out, ev.SlaveID, ev.Pdu)
			}

			ctx, cancel := signalContext()
			defer cancel()
			return m.Start(ctx)
		},
	}
	serialFlags(cmd.Flags())
	cmd.Flags().StringVar(&recordPath, "record", "", "append frames to this journal file")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <slave> <function> <hexdata>",
		Short: "Print the wire form of a frame",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slaveID, pdu, err := parsePDU(args)
			if err != nil {
				return err
			}
			raw, err := encodeFrame(slaveID, pdu)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", strings.TrimRight(string(raw), "\r\n"))
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <frame>",
		Short: "Check and print the contents of a wire frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slaveID, pdu, err := decodeFrame(args[0])
			if err != nil {
				return err
			}
			printPDU(cmd.OutOrStdout(), slaveID, pdu)
			return nil
		},
	}
}

func journalConfig() config.JournalConfig {
	if recordPath == "" {
		return config.JournalConfig{Type: "none"}
	}
	return config.JournalConfig{Type: "file", Path: recordPath}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// parsePDU reads <slave> <function> [hexdata]; numbers accept 0x prefixes.
func parsePDU(args []string) (byte, modbus.ProtocolDataUnit, error) {
	var pdu modbus.ProtocolDataUnit

	slaveID, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return 0, pdu, fmt.Errorf("invalid slave id %q: %w", args[0], err)
	}
	function, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return 0, pdu, fmt.Errorf("invalid function code %q: %w", args[1], err)
	}
	pdu.FunctionCode = byte(function)

	if len(args) > 2 {
		data, err := hex.DecodeString(strings.ReplaceAll(args[2], " ", ""))
		if err != nil {
			return 0, pdu, fmt.Errorf("invalid data %q: %w", args[2], err)
		}
		pdu.Data = data
	}
	return byte(slaveID), pdu, nil
}

func encodeFrame(slaveID byte, pdu modbus.ProtocolDataUnit) ([]byte, error) {
	var frame asciiframe.Frame
	frame.Address = slaveID
	frame.Function = pdu.FunctionCode
	n, err := frame.SetPayload(pdu.Data)
	if err != nil {
		return nil, err
	}
	return asciiframe.AppendFrame(nil, &frame, n)
}

// decodeFrame accepts a frame with or without its CR LF trailer.
func decodeFrame(s string) (byte, modbus.ProtocolDataUnit, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "\r\n")
	var frame asciiframe.Frame
	n, err := asciiframe.DecodeFrame([]byte(s+"\r\n"), &frame)
	if err != nil {
		return 0, modbus.ProtocolDataUnit{}, err
	}
	data := append([]byte(nil), frame.Payload(n)...)
	return frame.Address, modbus.ProtocolDataUnit{FunctionCode: frame.Function, Data: data}, nil
}

func printPDU(w io.Writer, slaveID byte, pdu modbus.ProtocolDataUnit) {
	fmt.Fprintf(w, "slave=%d function=0x%02X data=%X", slaveID, pdu.FunctionCode, pdu.Data)
	if pdu.FunctionCode&0x80 != 0 && len(pdu.Data) > 0 {
		fmt.Fprintf(w, " exception=0x%02X", pdu.Data[0])
	}
	fmt.Fprintln(w)
}
