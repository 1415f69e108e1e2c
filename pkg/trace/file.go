// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
	"github.com/howeyc/crc16"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

var crcTable = crc16.MakeTable(crc16.CCITT)

// Writer is a Sink writing an xz compressed trace. Each record is a CBOR array of the CBOR encoded Event
// as a byte string and its CRC-16 (CCITT).
type Writer struct {
	xzw *xz.Writer
	out io.Closer
	buf bytes.Buffer
}

// NewWriter compresses a trace into w.
func NewWriter(w io.Writer) (*Writer, error) {
	xzw, err := xz.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &Writer{xzw: xzw}, nil
}

// Create a trace file. An existing file will be truncated.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.out = f
	return w, nil
}

// Write a single Event.
func (w *Writer) Write(e Event) error {
	w.buf.Reset()
	if err := cboring.Marshal(&e, &w.buf); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(2, w.xzw); err != nil {
		return err
	}
	if err := cboring.WriteByteString(w.buf.Bytes(), w.xzw); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(crc16.Checksum(w.buf.Bytes(), crcTable)), w.xzw)
}

// Record an Event; errors are logged.
func (w *Writer) Record(e Event) {
	if err := w.Write(e); err != nil {
		log.WithFields(log.Fields{
			"event": e,
			"error": err,
		}).Warn("Writing trace event failed")
	}
}

// Close flushes the compressed stream and closes a file opened by Create.
func (w *Writer) Close() (err error) {
	if xzErr := w.xzw.Close(); xzErr != nil {
		err = multierror.Append(err, xzErr)
	}
	if w.out != nil {
		if outErr := w.out.Close(); outErr != nil {
			err = multierror.Append(err, outErr)
		}
	}
	return
}

// Reader reads Events written by a Writer.
type Reader struct {
	r *bufio.Reader
}

// NewReader decompresses a trace from r.
func NewReader(r io.Reader) (*Reader, error) {
	xzr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{r: bufio.NewReader(xzr)}, nil
}

// Next Event of the trace. io.EOF is returned after the last Event.
func (r *Reader) Next() (e Event, err error) {
	if _, err = r.r.Peek(1); err != nil {
		return
	}

	if n, lenErr := cboring.ReadArrayLength(r.r); lenErr != nil {
		err = lenErr
		return
	} else if n != 2 {
		err = fmt.Errorf("trace record has %d fields, expected 2", n)
		return
	}

	data, err := cboring.ReadByteString(r.r)
	if err != nil {
		return
	}
	crc, err := cboring.ReadUInt(r.r)
	if err != nil {
		return
	}

	if expected := crc16.Checksum(data, crcTable); uint64(expected) != crc {
		err = fmt.Errorf("trace record CRC mismatch: %04x != %04x", crc, expected)
		return
	}

	err = cboring.Unmarshal(&e, bytes.NewReader(data))
	return
}

// ReadAll Events of a trace.
func ReadAll(r io.Reader) (events []Event, err error) {
	tr, err := NewReader(r)
	if err != nil {
		return
	}

	for {
		e, nextErr := tr.Next()
		if nextErr == io.EOF {
			return
		} else if nextErr != nil {
			err = nextErr
			return
		}
		events = append(events, e)
	}
}
