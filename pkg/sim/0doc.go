// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sim provides a single-threaded discrete-event environment: a Scheduler with a virtual clock
// and a Network of intermittently connected nodes offering datagram and stream transports.
//
// Nothing in this package blocks. All state transitions happen inside callbacks dispatched by the
// Scheduler, one after another, so callbacks never need to lock against each other.
package sim
