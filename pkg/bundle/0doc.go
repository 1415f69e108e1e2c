// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bundle provides the wire format of the bundle relay protocol.
//
// A bundle travels as a fixed-size Header, optionally followed by its payload. Control traffic is a
// concatenation of ControlHeader records, each followed by its type-specific payload. Multiple records
// are coalesced into one packet by a Packer, which respects a maximum packet size. All multi-byte
// integers are encoded in network byte order.
package bundle
