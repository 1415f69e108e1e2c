// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/simulation"
)

// tomlConfig describes the TOML-configuration. The scenario is described by the embedded
// simulation.Config.
type tomlConfig struct {
	Logging logConf
	Http    httpConf

	simulation.Config
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// httpConf describes the HTTP server with its agents and metrics.
type httpConf struct {
	Listen    string
	Rest      bool
	Websocket bool
	Metrics   bool
	// QueueSize of each WebSocket client.
	QueueSize int `toml:"queue-size"`
}

// parseLogging configures logrus.
func parseLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseHttp creates the HTTP server and registers the agents at the Simulation.
func parseHttp(conf httpConf, s *simulation.Simulation) (*http.Server, error) {
	if !conf.Rest && !conf.Websocket && !conf.Metrics {
		return nil, nil
	}
	if conf.Listen == "" {
		return nil, fmt.Errorf("http.listen is empty")
	}

	r := mux.NewRouter()

	if conf.Rest {
		restRouter := r.PathPrefix("/rest").Subrouter()
		s.RegisterApplicationAgent(agent.NewRestAgent(restRouter, s))
	}

	if conf.Websocket {
		ws := agent.NewWebSocketAgent(s, conf.QueueSize)
		r.Handle("/ws", ws)
		s.RegisterApplicationAgent(ws)
		s.AddSink(ws)
	}

	if conf.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.Stats().Gatherer(), promhttp.HandlerOpts{}))
	}

	log.WithFields(log.Fields{
		"listen":    conf.Listen,
		"rest":      conf.Rest,
		"websocket": conf.Websocket,
		"metrics":   conf.Metrics,
	}).Info("Starting HTTP server")

	return &http.Server{
		Addr:    conf.Listen,
		Handler: r,
	}, nil
}

// parseSimulation creates the Simulation and its HTTP server based on the given TOML configuration.
func parseSimulation(filename string) (s *simulation.Simulation, srv *http.Server, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	parseLogging(conf.Logging)

	if s, err = simulation.New(conf.Config); err != nil {
		return
	}

	if srv, err = parseHttp(conf.Http, s); err != nil {
		_ = s.Close()
		s = nil
	}
	return
}
