// Copyright 2024 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/config"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/dahdi"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rtpbridge"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/simspan"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/stats"
	"github.com/xrg/dahdi-linux-xrg-sub000/version"
)

func main() {
	configFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "DAHDI yaml config file",
			Sources: cli.EnvVars("DAHDI_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "config-body",
			Usage:   "DAHDI yaml config body",
			Sources: cli.EnvVars("DAHDI_CONFIG_BODY"),
		},
	}
	cmd := &cli.Command{
		Name:        "dahdi-sim",
		Usage:       "DAHDI engine on simulated spans",
		Version:     version.Version,
		Description: "Runs the channel and conferencing engine on software spans",
		Flags:       configFlags,
		Action:      runService,
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "validate the config and print the span layout",
				Flags:  configFlags,
				Action: runCheck,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runCheck(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c, false)
	if err != nil {
		return err
	}
	for i, s := range conf.Spans {
		fmt.Printf("span %d %q: %d channels, %s, law %q, rbs %v\n", i+1, s.Name, s.Channels, s.Sig, s.Law, s.RBS)
	}
	for i, z := range conf.Zones {
		fmt.Printf("zone %d %q: %d tones\n", i, z.Name, len(z.Tones))
	}
	return nil
}

func runService(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c, true)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	mon, err := stats.NewMonitor(conf)
	if err != nil {
		return err
	}
	if err = mon.Start(conf); err != nil {
		return err
	}
	defer mon.Stop()

	r := dahdi.NewRegistry(conf.EngineOptions(log, mon))
	defer r.Shutdown()
	mon.SetConfSource(func() int {
		confs, _ := r.ConfDiag()
		return len(confs)
	})
	if err = conf.LoadZones(r); err != nil {
		return err
	}

	clock := simspan.NewClock(r, conf.TickInterval, mon, log)
	for i := range conf.Spans {
		sc := &conf.Spans[i]
		cfg, err := sc.SpanConfig()
		if err != nil {
			return err
		}
		drv := simspan.NewDriver(log, sc.Loopback)
		s, err := dahdi.NewSpan(cfg, drv)
		if err != nil {
			return err
		}
		if err = r.Register(ctx, s, sc.PreferMaster); err != nil {
			return err
		}
		for _, pos := range sc.HDLC {
			ch, err := s.Chan(pos)
			if err != nil {
				return err
			}
			if err = ch.SetHDLC(dahdi.HDLCFCS); err != nil {
				return err
			}
		}
		clock.Attach(drv)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if conf.PrometheusPort > 0 {
		srv := &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", err)
			}
		}()
		defer srv.Close()
	}

	if rc := conf.RTP; rc != nil {
		w, err := rtpbridge.DialUDP(rc.Address)
		if err != nil {
			return err
		}
		defer w.Close()
		tap, err := rtpbridge.NewTap(r, rc.Channel, w, &rtpbridge.Config{
			Log:       log,
			PacketDur: time.Duration(rc.PacketMS) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		defer tap.Close()
		go func() {
			if err := tap.Run(ctx); err != nil {
				log.Warnw("rtp tap stopped", err)
			}
		}()
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-stopChan
		log.Infow("exit requested, shutting down", "signal", sig)
		cancel()
	}()

	log.Infow("engine running", "spans", len(conf.Spans), "tick", conf.TickInterval)
	return clock.Run(ctx)
}

func getConfig(c *cli.Command, initialize bool) (*config.Config, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")

	var (
		conf *config.Config
		err  error
	)
	switch {
	case configBody != "":
		conf, err = config.NewConfig(configBody)
	case configFile != "":
		conf, err = config.LoadFile(configFile)
	default:
		return nil, errors.ErrNoConfig
	}
	if err != nil {
		return nil, err
	}

	if initialize {
		err = conf.Init()
		if err != nil {
			return nil, err
		}
	}

	return conf, nil
}
