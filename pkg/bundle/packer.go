// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPacketTooSmall is returned for a maximum packet size unable to carry a single identifier.
var ErrPacketTooSmall = errors.New("control packet size cannot carry a single identifier")

// MinEncounterPacketLen is the smallest packet able to carry an encounter record with one entry.
const MinEncounterPacketLen = ControlHeaderLen + encounterFixedLen + encounterEntryLen

// Packer coalesces control records into packets of a maximum size. A record is never split across
// packets; instead, long identifier lists or encounter tables are split into multiple records.
type Packer struct {
	sender  NodeID
	maxSize int

	current []byte
	packets [][]byte
}

// NewPacker for a sending node and a maximum packet size.
func NewPacker(sender NodeID, maxSize int) (*Packer, error) {
	if maxSize < ControlHeaderLen+IDLen {
		return nil, fmt.Errorf("%w: %d bytes, at least %d required", ErrPacketTooSmall, maxSize, ControlHeaderLen+IDLen)
	}

	return &Packer{sender: sender, maxSize: maxSize}, nil
}

func (p *Packer) free() int {
	return p.maxSize - len(p.current)
}

func (p *Packer) flush() {
	if len(p.current) > 0 {
		p.packets = append(p.packets, p.current)
		p.current = nil
	}
}

// ensure flushes the current packet unless it has room for at least n more bytes.
func (p *Packer) ensure(n int) {
	if p.free() < n {
		p.flush()
	}
}

func (p *Packer) appendRecord(mt MessageType, payload []byte) {
	var hdr [ControlHeaderLen]byte
	ControlHeader{Sender: p.sender, Type: mt, Length: uint16(len(payload))}.put(hdr[:])

	p.current = append(p.current, hdr[:]...)
	p.current = append(p.current, payload...)
}

func fitting(free, fixed, entry, remaining int) int {
	n := (free - ControlHeaderLen - fixed) / entry
	if limit := (MaxPayloadLen - fixed) / entry; n > limit {
		n = limit
	}
	if n > remaining {
		n = remaining
	}
	return n
}

// AddIDs appends an identifier-list of the given type. An empty list still results in one empty record.
func (p *Packer) AddIDs(mt MessageType, ids []ID) {
	for first := true; first || len(ids) > 0; first = false {
		p.ensure(ControlHeaderLen + IDLen)

		n := fitting(p.free(), 0, IDLen, len(ids))
		payload := make([]byte, n*IDLen)
		for i, id := range ids[:n] {
			binary.BigEndian.PutUint64(payload[i*IDLen:], uint64(id))
		}

		p.appendRecord(mt, payload)
		ids = ids[n:]
	}
}

// AddEncounter appends an encounter record, fragmented into multiple records sharing the same owner
// and timestamp if required.
func (p *Packer) AddEncounter(er EncounterRecord) error {
	if p.maxSize < MinEncounterPacketLen {
		return fmt.Errorf("%w: encounter records require %d bytes, packets have %d",
			ErrPacketTooSmall, MinEncounterPacketLen, p.maxSize)
	}

	targets := er.Targets()

	for first := true; first || len(targets) > 0; first = false {
		p.ensure(MinEncounterPacketLen)

		n := fitting(p.free(), encounterFixedLen, encounterEntryLen, len(targets))
		p.appendRecord(EncounterProb, encodeEncounter(er.Owner, er.Timestamp, targets[:n], er.Probabilities))
		targets = targets[n:]
	}
	return nil
}

// Packets returns all packets, including a trailing partial one, and resets this Packer.
func (p *Packer) Packets() [][]byte {
	p.flush()

	packets := p.packets
	p.packets = nil
	return packets
}
