// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package trace records the life of bundles within a simulation.
//
// Events are passed to Sinks. Besides in-memory consumers, two persistent Sinks exist: a compact,
// xz compressed CBOR trace file and a queryable badgerhold database.
package trace

import (
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Kind of an Event.
type Kind uint8

const (
	// Created by the local application.
	Created Kind = iota

	// Forwarded to a peer, i.e., handed to the transfer engine.
	Forwarded

	// Received from a peer and stored as a relay copy.
	Received

	// Delivered to the local application as the bundle's target.
	Delivered

	// Duplicate reception of a known or delivered bundle.
	Duplicate

	// Dropped because the store was full.
	Dropped

	// Expired while stored or during reception.
	Expired

	// Evicted to make room for another bundle.
	Evicted

	// Acked bundles were purged after a peer's acknowledgment.
	Acked
)

var kindNames = []string{
	"created", "forwarded", "received", "delivered", "duplicate", "dropped", "expired", "evicted", "acked",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseKind from its name.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trace event kind %q", s)
}

// MarshalText encodes a Kind by its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a Kind from its name.
func (k *Kind) UnmarshalText(text []byte) (err error) {
	*k, err = ParseKind(string(text))
	return
}

// Event is a single step in a bundle's life.
type Event struct {
	Time     time.Duration `json:"time"`
	Kind     Kind          `json:"kind"`
	Node     bundle.NodeID `json:"node"`
	Peer     bundle.NodeID `json:"peer,omitempty"`
	Bundle   bundle.ID     `json:"bundle"`
	Size     uint32        `json:"size"`
	HopCount uint32        `json:"hop_count"`
}

func (e Event) String() string {
	return fmt.Sprintf("%v %v@%v bundle=%v peer=%v", e.Time, e.Kind, e.Node, e.Bundle, e.Peer)
}

// MarshalCbor writes an Event as a CBOR array of seven unsigned integers.
func (e *Event) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(7, w); err != nil {
		return err
	}

	fields := []uint64{
		uint64(e.Time), uint64(e.Kind), uint64(e.Node), uint64(e.Peer),
		uint64(e.Bundle), uint64(e.Size), uint64(e.HopCount),
	}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalCbor reads an Event written by MarshalCbor.
func (e *Event) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 7 {
		return fmt.Errorf("trace event has %d fields, expected 7", n)
	}

	var fields [7]uint64
	for i := range fields {
		f, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		fields[i] = f
	}

	e.Time = time.Duration(fields[0])
	e.Kind = Kind(fields[1])
	e.Node = bundle.NodeID(fields[2])
	e.Peer = bundle.NodeID(fields[3])
	e.Bundle = bundle.ID(fields[4])
	e.Size = uint32(fields[5])
	e.HopCount = uint32(fields[6])
	return nil
}
