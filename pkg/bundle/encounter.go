// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	encounterFixedLen = 16
	encounterEntryLen = 8
)

// EncounterRecord is a node's table of encounter probabilities for all nodes it ever met.
type EncounterRecord struct {
	Owner         NodeID
	Timestamp     time.Duration
	Probabilities map[NodeID]float64
}

// NewEncounterRecord creates an empty EncounterRecord for a node.
func NewEncounterRecord(owner NodeID, timestamp time.Duration) EncounterRecord {
	return EncounterRecord{
		Owner:         owner,
		Timestamp:     timestamp,
		Probabilities: make(map[NodeID]float64),
	}
}

// Targets of this record in ascending order.
func (er EncounterRecord) Targets() []NodeID {
	targets := make([]NodeID, 0, len(er.Probabilities))
	for target := range er.Probabilities {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// Copy this record, including a copy of its probability map.
func (er EncounterRecord) Copy() EncounterRecord {
	c := NewEncounterRecord(er.Owner, er.Timestamp)
	for target, p := range er.Probabilities {
		c.Probabilities[target] = p
	}
	return c
}

func encodeEncounter(owner NodeID, timestamp time.Duration, targets []NodeID, probs map[NodeID]float64) []byte {
	b := make([]byte, encounterFixedLen+encounterEntryLen*len(targets))
	binary.BigEndian.PutUint32(b[0:4], uint32(owner))
	binary.BigEndian.PutUint32(b[4:8], uint32(len(targets)))
	binary.BigEndian.PutUint64(b[8:16], uint64(timestamp))

	for i, target := range targets {
		off := encounterFixedLen + i*encounterEntryLen
		binary.BigEndian.PutUint32(b[off:off+4], uint32(target))
		binary.BigEndian.PutUint32(b[off+4:off+8], math.Float32bits(float32(probs[target])))
	}
	return b
}

// Encounter decodes an EncounterProb payload. A record might be a fragment of a larger table.
func (m Message) Encounter() (er EncounterRecord, err error) {
	if m.Type != EncounterProb {
		err = fmt.Errorf("message is %v, not %v", m.Type, EncounterProb)
		return
	}
	if len(m.Payload) < encounterFixedLen {
		err = fmt.Errorf("encounter payload of %d bytes is truncated", len(m.Payload))
		return
	}

	count := binary.BigEndian.Uint32(m.Payload[4:8])
	if expected := encounterFixedLen + encounterEntryLen*int(count); len(m.Payload) != expected {
		err = fmt.Errorf("encounter payload announces %d entries in %d bytes, got %d bytes",
			count, expected, len(m.Payload))
		return
	}

	er = NewEncounterRecord(
		NodeID(binary.BigEndian.Uint32(m.Payload[0:4])),
		time.Duration(binary.BigEndian.Uint64(m.Payload[8:16])))

	for i := 0; i < int(count); i++ {
		off := encounterFixedLen + i*encounterEntryLen
		target := NodeID(binary.BigEndian.Uint32(m.Payload[off : off+4]))
		p := math.Float32frombits(binary.BigEndian.Uint32(m.Payload[off+4 : off+8]))
		if math.IsNaN(float64(p)) || p < 0 || p > 1 {
			err = fmt.Errorf("encounter probability %f for %v is out of range", p, target)
			return
		}
		er.Probabilities[target] = float64(p)
	}
	return
}
