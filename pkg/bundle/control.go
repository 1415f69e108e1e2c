// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MessageType tags each record of a control or data packet.
type MessageType uint16

const (
	// Hello advertises all offerable bundle IDs of its sender.
	Hello MessageType = 0

	// Request lists the bundle IDs its sender wants to receive.
	Request MessageType = 1

	// BundleData carries a Header and the bundle's payload.
	BundleData MessageType = 2

	// EncounterProb carries one (fragment of an) encounter probability record.
	EncounterProb MessageType = 3

	// Ack lists bundle IDs which were already delivered to their target.
	Ack MessageType = 4
)

func (mt MessageType) String() string {
	switch mt {
	case Hello:
		return "Hello"
	case Request:
		return "Request"
	case BundleData:
		return "BundleData"
	case EncounterProb:
		return "EncounterProb"
	case Ack:
		return "Ack"
	default:
		return "INVALID"
	}
}

// IsValid checks if this MessageType represents a known value.
func (mt MessageType) IsValid() bool {
	return mt.String() != "INVALID"
}

// ControlHeaderLen is the fixed length of a serialized ControlHeader.
const ControlHeaderLen = 8

// MaxPayloadLen is the largest payload a single record can carry.
const MaxPayloadLen = math.MaxUint16

// ControlHeader precedes each record of a packet.
type ControlHeader struct {
	Sender NodeID
	Type   MessageType
	Length uint16
}

func (ch ControlHeader) put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], uint32(ch.Sender))
	binary.BigEndian.PutUint16(b[4:6], uint16(ch.Type))
	binary.BigEndian.PutUint16(b[6:8], ch.Length)
}

func parseControlHeader(b []byte) ControlHeader {
	return ControlHeader{
		Sender: NodeID(binary.BigEndian.Uint32(b[0:4])),
		Type:   MessageType(binary.BigEndian.Uint16(b[4:6])),
		Length: binary.BigEndian.Uint16(b[6:8]),
	}
}

// Message is a single record of a packet.
type Message struct {
	ControlHeader
	Payload []byte
}

func (m Message) String() string {
	return fmt.Sprintf("%v(sender=%v, length=%d)", m.Type, m.Sender, m.Length)
}

// ParsePacket splits a packet into its records.
func ParsePacket(data []byte) (msgs []Message, err error) {
	for len(data) > 0 {
		if len(data) < ControlHeaderLen {
			err = fmt.Errorf("truncated control header: %d bytes left", len(data))
			return
		}

		ch := parseControlHeader(data)
		if !ch.Type.IsValid() {
			err = fmt.Errorf("unknown message type %d", ch.Type)
			return
		}

		end := ControlHeaderLen + int(ch.Length)
		if len(data) < end {
			err = fmt.Errorf("%v payload announces %d bytes, only %d available",
				ch.Type, ch.Length, len(data)-ControlHeaderLen)
			return
		}

		msgs = append(msgs, Message{ControlHeader: ch, Payload: data[ControlHeaderLen:end]})
		data = data[end:]
	}
	return
}

// IDs decodes an identifier-list payload of a Hello, Request or Ack.
func (m Message) IDs() ([]ID, error) {
	if len(m.Payload)%IDLen != 0 {
		return nil, fmt.Errorf("%v payload length %d is no multiple of %d", m.Type, len(m.Payload), IDLen)
	}

	ids := make([]ID, len(m.Payload)/IDLen)
	for i := range ids {
		ids[i] = ID(binary.BigEndian.Uint64(m.Payload[i*IDLen:]))
	}
	return ids, nil
}

// BundleData decodes a BundleData payload into its Header and the following payload bytes.
func (m Message) BundleData() (h Header, payload []byte, err error) {
	if m.Type != BundleData {
		err = fmt.Errorf("message is %v, not %v", m.Type, BundleData)
		return
	}
	if h, err = ParseHeader(m.Payload); err != nil {
		return
	}

	payload = m.Payload[HeaderLen:]
	if uint32(len(payload)) != h.Size {
		err = fmt.Errorf("bundle %v announces %d bytes, carries %d", h.ID, h.Size, len(payload))
	}
	return
}

// NewBundleDataPacket creates a single-record packet carrying a whole bundle.
func NewBundleDataPacket(sender NodeID, h Header, payload []byte) ([]byte, error) {
	if uint32(len(payload)) != h.Size {
		return nil, fmt.Errorf("bundle %v announces %d bytes, payload has %d", h.ID, h.Size, len(payload))
	}

	l := HeaderLen + len(payload)
	if l > MaxPayloadLen {
		return nil, fmt.Errorf("bundle %v needs %d bytes, a record carries at most %d", h.ID, l, MaxPayloadLen)
	}

	pkt := make([]byte, ControlHeaderLen+l)
	ControlHeader{Sender: sender, Type: BundleData, Length: uint16(l)}.put(pkt)
	h.put(pkt[ControlHeaderLen:])
	copy(pkt[ControlHeaderLen+HeaderLen:], payload)
	return pkt, nil
}

// BundleDataPacketLen is the packet length of a single BundleData record for a bundle of the given size.
func BundleDataPacketLen(size uint32) int {
	return ControlHeaderLen + HeaderLen + int(size)
}
