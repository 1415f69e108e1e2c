// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	s, srv, err := parseSimulation(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	if srv != nil {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP server errored")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := s.Run(ctx); err != nil {
		log.WithError(err).Info("Simulation was interrupted")
	}

	sum := s.Summary()
	fields := log.Fields{
		"time":           sum.Time,
		"created":        sum.Created,
		"delivered":      sum.Delivered,
		"delivery ratio": sum.DeliveryRatio,
	}
	for _, kind := range sum.Kinds() {
		fields["events "+kind.String()] = sum.Events[kind]
	}
	log.WithFields(fields).Info("Simulation summary")

	// The HTTP server keeps running for inspection until the next interrupt.
	if srv != nil && ctx.Err() == nil {
		log.Info("Waiting for interrupt to shut down..")
		<-ctx.Done()
	}

	log.Info("Shutting down..")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	if err := s.Close(); err != nil {
		log.WithError(err).Warn("Closing simulation errored")
	}
}
