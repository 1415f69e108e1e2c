// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Record is the local bookkeeping for a stored bundle. It is never serialized; only its Header travels.
type Record struct {
	Header bundle.Header

	// Payload is nil for virtual payloads, where only the Header's Size matters.
	Payload []byte

	// RemainingCopies is the local copy budget. It must only be lowered by the routing policy.
	RemainingCopies uint32

	// Cost is a relay cost assigned by the routing policy; lower is more important.
	Cost float64

	seq uint64
}

// NewRecord for a bundle Header with an initial copy budget.
func NewRecord(h bundle.Header, payload []byte, copies uint32) *Record {
	return &Record{
		Header:          h,
		Payload:         payload,
		RemainingCopies: copies,
	}
}

// ID of the stored bundle.
func (r *Record) ID() bundle.ID {
	return r.Header.ID
}

// Offerable records can be advertised to neighbors, which requires at least one remaining copy.
func (r *Record) Offerable() bool {
	return r.RemainingCopies >= 1
}

func (r *Record) String() string {
	return fmt.Sprintf("Record(%v, copies=%d, cost=%.3f)", r.Header.ID, r.RemainingCopies, r.Cost)
}

// RemovalReason explains why a Record left the Store.
type RemovalReason uint

const (
	// Removed by an explicit request, e.g., after a delivery.
	Removed RemovalReason = iota

	// Expired records reached their expiration time.
	Expired

	// Evicted records were dropped for capacity reasons.
	Evicted

	// Acknowledged records were reported as delivered by another node.
	Acknowledged
)

func (rr RemovalReason) String() string {
	switch rr {
	case Removed:
		return "removed"
	case Expired:
		return "expired"
	case Evicted:
		return "evicted"
	case Acknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}
