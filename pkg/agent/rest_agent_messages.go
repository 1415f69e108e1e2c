// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"math"
	"time"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// RestRegisterRequest describes a JSON to be POSTed to /register.
type RestRegisterRequest struct {
	Node string `json:"node"`
}

// RestRegisterResponse describes a JSON response for /register.
type RestRegisterResponse struct {
	Error string `json:"error"`
	UUID  string `json:"uuid"`
}

// RestUnregisterRequest describes a JSON to be POSTed to /unregister.
type RestUnregisterRequest struct {
	UUID string `json:"uuid"`
}

// RestUnregisterResponse describes a JSON response for /unregister.
type RestUnregisterResponse struct {
	Error string `json:"error"`
}

// RestFetchRequest describes a JSON to be POSTed to /fetch.
type RestFetchRequest struct {
	UUID string `json:"uuid"`
}

// RestFetchResponse describes a JSON response for /fetch.
type RestFetchResponse struct {
	Error   string       `json:"error"`
	Bundles []RestBundle `json:"bundles"`
}

// RestSendRequest describes a JSON to be POSTed to /send. Without a payload, a virtual bundle of the
// given size is created.
type RestSendRequest struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Size    uint32 `json:"size"`
	Payload []byte `json:"payload,omitempty"`
}

// RestSendResponse describes a JSON response for /send.
type RestSendResponse struct {
	Error  string `json:"error"`
	Bundle string `json:"bundle"`
}

// RestBundle is the JSON representation of a delivered bundle.
type RestBundle struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Node      string `json:"node"`
	Size      uint32 `json:"size"`
	HopCount  uint32 `json:"hop_count"`
	SendTime  string `json:"send_time"`
	Delivered string `json:"delivered"`
	Payload   []byte `json:"payload,omitempty"`
}

func newRestBundle(bm BundleMessage) RestBundle {
	return RestBundle{
		ID:        bm.Header.ID.String(),
		Source:    bm.Header.ID.Source().String(),
		Target:    bm.Header.Target.String(),
		Node:      bm.Node.String(),
		Size:      bm.Header.Size,
		HopCount:  bm.Header.HopCount,
		SendTime:  bm.Header.SendTime.String(),
		Delivered: bm.Time.String(),
		Payload:   bm.Payload,
	}
}

// RestNode describes a node's state, returned by /nodes and /nodes/{id}.
type RestNode struct {
	Node          string `json:"node"`
	Address       string `json:"address"`
	Routing       string `json:"routing"`
	StoredBundles int    `json:"stored_bundles"`
	StoredBytes   uint64 `json:"stored_bytes"`
	Capacity      uint64 `json:"capacity"`
	Delivered     int    `json:"delivered"`
}

// RestRecord is a stored bundle, returned by /nodes/{id}/store. A missing cost is an unreachable target.
type RestRecord struct {
	ID              string   `json:"id"`
	Target          string   `json:"target"`
	Size            uint32   `json:"size"`
	HopCount        uint32   `json:"hop_count"`
	Expiration      string   `json:"expiration"`
	RemainingCopies uint32   `json:"remaining_copies"`
	Cost            *float64 `json:"cost,omitempty"`
}

// NewRestRecord for a stored bundle. JSON has no infinity, so an infinite cost is omitted.
func NewRestRecord(h bundle.Header, remainingCopies uint32, cost float64) RestRecord {
	rr := RestRecord{
		ID:              h.ID.String(),
		Target:          h.Target.String(),
		Size:            h.Size,
		HopCount:        h.HopCount,
		RemainingCopies: remainingCopies,
	}

	if h.Expiration == bundle.NeverExpires {
		rr.Expiration = "never"
	} else {
		rr.Expiration = h.Expiration.String()
	}

	if !math.IsInf(cost, 0) && !math.IsNaN(cost) {
		rr.Cost = &cost
	}
	return rr
}

// RestError describes a JSON response for failed requests.
type RestError struct {
	Error string `json:"error"`
}

// RestClock describes a JSON response for /time.
type RestClock struct {
	Time    string        `json:"time"`
	Elapsed time.Duration `json:"elapsed_ns"`
}
