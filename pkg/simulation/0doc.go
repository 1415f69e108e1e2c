// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package simulation builds and runs whole scenarios from a TOML configuration.
//
// A scenario consists of nodes, each running a routing.Core, of contacts between them and of traffic
// sources sending bundles periodically. All nodes share one discrete-event Scheduler, so a scenario
// with the same seed results in the same trace. An example configuration follows.
//
//	seed     = 42
//	duration = "10m"
//
//	[network]
//	latency   = "10ms"
//	bandwidth = 1048576
//
//	[defaults]
//	hello-interval = "1s"
//	  [defaults.routing]
//	  algorithm = "binary_spray"
//	  spray = { multiplicity = 8 }
//
//	[[node]]
//	id    = 1
//	count = 3
//
//	[[contact]]
//	a     = 1
//	b     = 2
//	start = "10s"
//	end   = "1m"
//
//	[[traffic]]
//	from     = 1
//	to       = "3"
//	interval = "30s"
//	count    = 10
//	size     = 1024
package simulation
