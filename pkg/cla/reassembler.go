// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Reassembled is a bundle extracted from a stream.
type Reassembled struct {
	Header  bundle.Header
	Payload []byte
}

// Reassembler splits an incoming byte stream of back-to-back [Header][payload] records into bundles,
// independent of how the stream was chunked.
type Reassembler struct {
	buf []byte

	// header is valid if expecting is set; its Size is the expected body length.
	header    bundle.Header
	expecting bool
}

// Feed the next chunk of the stream. All bundles completed by this chunk are returned in order.
func (r *Reassembler) Feed(data []byte) (bundles []Reassembled) {
	r.buf = append(r.buf, data...)

	for {
		if !r.expecting {
			if len(r.buf) < bundle.HeaderLen {
				break
			}

			// ParseHeader only fails for short inputs, which was checked above.
			r.header, _ = bundle.ParseHeader(r.buf)
			r.buf = r.buf[bundle.HeaderLen:]
			r.expecting = true
		}

		size := int(r.header.Size)
		if len(r.buf) < size {
			break
		}

		bundles = append(bundles, Reassembled{
			Header:  r.header,
			Payload: append([]byte(nil), r.buf[:size]...),
		})
		r.buf = r.buf[size:]
		r.expecting = false
	}

	if len(r.buf) == 0 {
		r.buf = nil
	}
	return
}

// Expecting returns the body size of the bundle currently parsed, or zero if no header is complete yet.
func (r *Reassembler) Expecting() uint32 {
	if !r.expecting {
		return 0
	}
	return r.header.Size
}

// Buffered is the amount of not yet consumed bytes.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}
