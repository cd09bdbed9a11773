// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/litronsim/internal/config"
	"github.com/Thermoquad/litronsim/internal/metrics"
	"github.com/Thermoquad/litronsim/internal/server"
	"github.com/Thermoquad/litronsim/pkg/backdoor"
	"github.com/Thermoquad/litronsim/pkg/litron"
)

var (
	serveListen   string
	serveSerial   string
	serveBackdoor string
	serveHardware bool
	serveSeed     int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emulator",
	Long: `Run the Litron emulator.

LVREMOTE is served on TCP (--listen) and optionally on a serial port
(--serial, using --baud). Every read from a connection is handled as one
buffer: a handshake arms the device, framed LVGET/LVPUT calls are answered
only while it is connected and armed, and everything else is dropped
silently.

The backdoor listener (--backdoor) serves the introspection WebSocket and,
when enabled in the config, Prometheus metrics at /metrics.

Statistics are printed on shutdown (Ctrl+C or SIGTERM).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "LVREMOTE TCP listen address (default from config, \"-\" disables)")
	serveCmd.Flags().StringVar(&serveSerial, "serial", "", "Serve LVREMOTE on this serial port")
	serveCmd.Flags().StringVar(&serveBackdoor, "backdoor", "", "Backdoor/metrics listen address (default from config, \"-\" disables)")
	serveCmd.Flags().BoolVar(&serveHardware, "hardware", false, "Start with the wavelength sensor coupled (noisy readings)")
	serveCmd.Flags().Int64Var(&serveSeed, "seed", 0, "Random seed for wavelength noise (0 uses the clock)")
}

// applyServeFlags overrides the config with flags given on the command line
func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		c.Server.Listen = disabled(serveListen)
	}
	if flags.Changed("serial") {
		c.Serial.Port = serveSerial
	}
	if flags.Changed("baud") {
		c.Serial.Baud = baudRate
	}
	if flags.Changed("backdoor") {
		c.Backdoor.Listen = disabled(serveBackdoor)
	}
	if flags.Changed("vi-path") {
		c.Device.VIPath = viPath
	}
	if flags.Changed("hardware") {
		c.Device.HardwareConnected = serveHardware
	}
	if flags.Changed("seed") {
		c.Device.Seed = serveSeed
	}
}

func disabled(addr string) string {
	if addr == "-" {
		return ""
	}
	return addr
}

// newDevice builds the instrument from the device config
func newDevice(c config.DeviceConfig) *litron.Device {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	dev := litron.NewDevice(
		litron.WithRand(rand.New(rand.NewSource(seed))),
		litron.WithJitter(c.Jitter),
		litron.WithConnected(c.Connected),
		litron.WithHardwareConnected(c.HardwareConnected),
		litron.WithCrystalPos(c.CrystalPos),
		litron.WithNudgeDist(c.NudgeDist),
		litron.WithWavelength(c.Wavelength),
	)
	if c.Initialized {
		// same as a handshake at power-up, so it still needs the link
		dev.Transact(func(p *litron.Panel) { p.Announce() })
	}
	return dev
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Server.Listen == "" && cfg.Serial.Port == "" {
		return errors.New("nothing to serve: both the TCP listener and the serial port are disabled")
	}

	stats := litron.NewStatistics()
	m := metrics.New()
	dev := newDevice(cfg.Device)
	m.WatchDevice(dev)

	em := litron.NewEmulator(dev,
		litron.WithVIPath(cfg.Device.VIPath),
		litron.WithErrorSink(server.NewLogSink(logger)),
		litron.WithObserver(stats),
		litron.WithObserver(m),
	)

	logger.WithFields(logrus.Fields{
		"vi_path":            cfg.Device.VIPath,
		"connected":          cfg.Device.Connected,
		"hardware_connected": cfg.Device.HardwareConnected,
		"crystal_pos":        cfg.Device.CrystalPos,
	}).Info("Litron emulator starting")

	handler := server.NewHandler(em,
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithBufferSize(cfg.Server.BufferSize),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.Listen != "" {
		tcp := server.NewTCPServer(handler,
			server.WithMaxConnections(cfg.Server.MaxConnections),
			server.WithKeepAlive(cfg.Server.KeepAlive),
		)
		g.Go(func() error {
			return tcp.ListenAndServe(ctx, cfg.Server.Listen)
		})
	}

	if cfg.Serial.Port != "" {
		g.Go(func() error {
			return handler.ServeSerial(ctx, cfg.Serial.Port, cfg.Serial.Baud)
		})
	}

	var httpSrv *http.Server
	if cfg.Backdoor.Listen != "" {
		httpSrv = newBackdoorHTTPServer(cfg.Backdoor, dev, m)
		g.Go(func() error {
			logger.WithField("addr", cfg.Backdoor.Listen).Info("backdoor listening")
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("backdoor: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	fmt.Fprint(os.Stderr, "\n"+stats.String())
	if err != nil {
		logger.WithError(err).Error("emulator stopped")
	} else {
		logger.Info("emulator stopped")
	}
	return err
}

// newBackdoorHTTPServer mounts the backdoor WebSocket and the metrics
// endpoint on one mux
func newBackdoorHTTPServer(c config.BackdoorConfig, dev *litron.Device, m *metrics.Metrics) *http.Server {
	opts := []backdoor.Option{backdoor.WithLogger(logger)}
	if c.Username != "" {
		opts = append(opts, backdoor.WithBasicAuth(c.Username, c.Password))
	}

	mux := http.NewServeMux()
	mux.Handle(c.Path, backdoor.NewServer(dev, opts...))
	if c.Metrics {
		mux.Handle("/metrics", m.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:              c.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// closeAll closes every closer and combines their errors
func closeAll(closers ...interface{ Close() error }) error {
	var err error
	for _, c := range closers {
		if c != nil {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
