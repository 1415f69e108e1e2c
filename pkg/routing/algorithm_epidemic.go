// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/storage"
)

// EpidemicRouting is an implementation of a Algorithm and behaves in a
// flooding-based epidemic way. Copies are unbounded.
type EpidemicRouting struct {
	noopHooks
	c *Core
}

// NewEpidemicRouting creates a new EpidemicRouting Algorithm interacting
// with the given Core.
func NewEpidemicRouting(c *Core) *EpidemicRouting {
	c.logger.Debug("Initialised epidemic routing")

	return &EpidemicRouting{c: c}
}

func (*EpidemicRouting) String() string {
	return "epidemic"
}

// InitialCopies is Unbounded.
func (*EpidemicRouting) InitialCopies() uint32 {
	return Unbounded
}

// ReceivedCopies is Unbounded; every node floods further.
func (*EpidemicRouting) ReceivedCopies(bundle.Header) uint32 {
	return Unbounded
}

// SubtractCopies leaves the budget untouched.
func (er *EpidemicRouting) SubtractCopies(rec *storage.Record, out *bundle.Header) {
	out.NumCopies = Unbounded

	er.c.logger.WithFields(log.Fields{
		"bundle": rec.ID(),
	}).Debug("Epidemic routing forwards bundle")
}
