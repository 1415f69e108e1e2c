// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// HeaderLen is the fixed length of a serialized Header.
const HeaderLen = 40

// NeverExpires is the expiration time of bundles whose lifetime would overflow the virtual clock.
const NeverExpires = time.Duration(math.MaxInt64)

// Header is the only metadata carried over the wire for a bundle. Its payload, if any, follows it.
//
// Times are virtual times since the simulation's start.
type Header struct {
	ID         ID
	Size       uint32
	Target     NodeID
	SendTime   time.Duration
	Expiration time.Duration
	NumCopies  uint32
	HopCount   uint32
}

// ExpirationTime for a bundle created at now with the given lifetime. Overflows saturate to NeverExpires.
func ExpirationTime(now, lifetime time.Duration) time.Duration {
	if lifetime < 0 {
		return now
	} else if now > NeverExpires-lifetime {
		return NeverExpires
	}
	return now + lifetime
}

// Expired checks if this bundle's expiration time has been reached.
func (h Header) Expired(now time.Duration) bool {
	return h.Expiration <= now
}

// Bytes serializes this Header into a new HeaderLen byte slice.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderLen)
	h.put(b)
	return b
}

func (h Header) put(b []byte) {
	binary.BigEndian.PutUint64(b[0:8], uint64(h.ID))
	binary.BigEndian.PutUint32(b[8:12], h.Size)
	binary.BigEndian.PutUint32(b[12:16], uint32(h.Target))
	binary.BigEndian.PutUint64(b[16:24], uint64(h.SendTime))
	binary.BigEndian.PutUint64(b[24:32], uint64(h.Expiration))
	binary.BigEndian.PutUint32(b[32:36], h.NumCopies)
	binary.BigEndian.PutUint32(b[36:40], h.HopCount)
}

// ParseHeader from the first HeaderLen bytes of b.
func ParseHeader(b []byte) (h Header, err error) {
	if len(b) < HeaderLen {
		err = fmt.Errorf("header requires %d bytes, got %d", HeaderLen, len(b))
		return
	}

	h = Header{
		ID:         ID(binary.BigEndian.Uint64(b[0:8])),
		Size:       binary.BigEndian.Uint32(b[8:12]),
		Target:     NodeID(binary.BigEndian.Uint32(b[12:16])),
		SendTime:   time.Duration(binary.BigEndian.Uint64(b[16:24])),
		Expiration: time.Duration(binary.BigEndian.Uint64(b[24:32])),
		NumCopies:  binary.BigEndian.Uint32(b[32:36]),
		HopCount:   binary.BigEndian.Uint32(b[36:40]),
	}
	return
}

// Marshal this Header to a Writer.
func (h Header) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, h)
}

// Unmarshal a Header from a Reader.
func (h *Header) Unmarshal(r io.Reader) error {
	return binary.Read(r, binary.BigEndian, h)
}

func (h Header) String() string {
	return fmt.Sprintf("Header(id=%v, size=%d, target=%v, copies=%d, hops=%d)",
		h.ID, h.Size, h.Target, h.NumCopies, h.HopCount)
}
