// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent describes the application side of simulated nodes, which consumes delivered bundles.
//
// The main interface is the ApplicationAgent, which receives Messages for a list of nodes. Deliveries happen on the
// simulation's goroutine, so an ApplicationAgent must never block. Due to this flexibility, an ApplicationAgent can
// be implemented in various forms, e.g., as an in-memory Mailbox, as a RestAgent to inspect a running simulation or
// as a WebSocketAgent streaming deliveries and trace events to external programs.
//
// The WebSocketAgentConnector is the client side of a WebSocketAgent.
package agent
