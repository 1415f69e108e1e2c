// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/dtn7/cboring"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// webAgentMessage describes a message which might be sent over a WebSocketAgent.
// Implementations are available at the end of this file.
type webAgentMessage interface {
	// typeCode is an unique identifier for each message type.
	// A const list of those and a map to a specific type will follow this interface's definition.
	typeCode() uint64

	// CborMarshaler must only be implemented for the type's logic.
	// A generic wrapper for the typeCode is available in the marshalCbor and unmarshalCbor functions.
	cboring.CborMarshaler
}

const (
	wamStatusCode   uint64 = 0
	wamRegisterCode uint64 = 1
	wamBundleCode   uint64 = 2
	wamSendCode     uint64 = 3
	wamEventCode    uint64 = 4
)

var wamMapping = map[uint64]reflect.Type{
	wamStatusCode:   reflect.TypeOf(wamStatus{}),
	wamRegisterCode: reflect.TypeOf(wamRegister{}),
	wamBundleCode:   reflect.TypeOf(wamBundle{}),
	wamSendCode:     reflect.TypeOf(wamSend{}),
	wamEventCode:    reflect.TypeOf(wamEvent{}),
}

// marshalCbor writes a webAgentMessage wrapped with its type code as CBOR.
func marshalCbor(wam webAgentMessage, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(wam.typeCode(), w); err != nil {
		return err
	}

	if err := cboring.Marshal(wam, w); err != nil {
		return err
	}

	return nil
}

// unmarshalCbor reads a new webAgentMessage based on its type code from CBOR.
func unmarshalCbor(r io.Reader) (wam webAgentMessage, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 2 {
		err = fmt.Errorf("expected array of two elements, got %d", n)
		return
	}

	if n, typeErr := cboring.ReadUInt(r); typeErr != nil {
		err = typeErr
		return
	} else if t, ok := wamMapping[n]; !ok {
		err = fmt.Errorf("no known WAM type code %d", n)
		return
	} else {
		wam = reflect.New(t).Interface().(webAgentMessage)
	}

	if wamErr := cboring.Unmarshal(wam, r); wamErr != nil {
		err = wamErr
		return
	}

	return
}

// wamStatus is a webAgentMessage to acknowledge a previous message or report an error with a non-empty string.
type wamStatus struct {
	errorMsg string
}

// newStatusMessage creates a new wamStatus webAgentMessage.
func newStatusMessage(err error) *wamStatus {
	if err == nil {
		return &wamStatus{""}
	} else {
		return &wamStatus{err.Error()}
	}
}

func (*wamStatus) typeCode() uint64 {
	return wamStatusCode
}

func (ws *wamStatus) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(ws.errorMsg, w)
}

func (ws *wamStatus) UnmarshalCbor(r io.Reader) (err error) {
	ws.errorMsg, err = cboring.ReadTextString(r)
	return
}

// wamRegister is sent from a client to register itself for a node, e.g., "23", or "any" for all nodes.
type wamRegister struct {
	endpoint string
}

// newRegisterMessage creates a new wamRegister webAgentMessage.
func newRegisterMessage(endpoint string) *wamRegister {
	return &wamRegister{endpoint}
}

func (*wamRegister) typeCode() uint64 {
	return wamRegisterCode
}

func (wr *wamRegister) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(wr.endpoint, w)
}

func (wr *wamRegister) UnmarshalCbor(r io.Reader) (err error) {
	wr.endpoint, err = cboring.ReadTextString(r)
	return
}

// wamBundle is sent from the server for each bundle delivered at a client's node.
type wamBundle struct {
	node    bundle.NodeID
	time    time.Duration
	header  bundle.Header
	payload []byte
}

// newBundleMessage creates a new wamBundle webAgentMessage.
func newBundleMessage(bm BundleMessage) *wamBundle {
	return &wamBundle{
		node:    bm.Node,
		time:    bm.Time,
		header:  bm.Header,
		payload: bm.Payload,
	}
}

func (*wamBundle) typeCode() uint64 {
	return wamBundleCode
}

func (wb *wamBundle) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	for _, n := range []uint64{uint64(wb.node), uint64(wb.time)} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteByteString(wb.header.Bytes(), w); err != nil {
		return err
	}

	return cboring.WriteByteString(wb.payload, w)
}

func (wb *wamBundle) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("expected CBOR array of 4 elements, not %d", n)
	}

	if node, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		wb.node = bundle.NodeID(node)
	}

	if t, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		wb.time = time.Duration(t)
	}

	if hdr, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if wb.header, err = bundle.ParseHeader(hdr); err != nil {
		return err
	}

	if payload, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(payload) > 0 {
		wb.payload = payload
	}

	return nil
}

// wamSend is sent from a registered client to create a new bundle at its node.
type wamSend struct {
	target  bundle.NodeID
	size    uint32
	payload []byte
}

// newSendMessage creates a new wamSend webAgentMessage.
func newSendMessage(target bundle.NodeID, size uint32, payload []byte) *wamSend {
	return &wamSend{
		target:  target,
		size:    size,
		payload: payload,
	}
}

func (*wamSend) typeCode() uint64 {
	return wamSendCode
}

func (ws *wamSend) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(ws.target), w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(ws.size), w); err != nil {
		return err
	}

	return cboring.WriteByteString(ws.payload, w)
}

func (ws *wamSend) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected CBOR array of 3 elements, not %d", n)
	}

	if target, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		ws.target = bundle.NodeID(target)
	}

	if size, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		ws.size = uint32(size)
	}

	if payload, err := cboring.ReadByteString(r); err != nil {
		return err
	} else if len(payload) > 0 {
		ws.payload = payload
	}

	return nil
}

// wamEvent is sent from the server for each trace Event at a client's node.
type wamEvent struct {
	event trace.Event
}

// newEventMessage creates a new wamEvent webAgentMessage.
func newEventMessage(e trace.Event) *wamEvent {
	return &wamEvent{e}
}

func (*wamEvent) typeCode() uint64 {
	return wamEventCode
}

func (we *wamEvent) MarshalCbor(w io.Writer) error {
	return cboring.Marshal(&we.event, w)
}

func (we *wamEvent) UnmarshalCbor(r io.Reader) error {
	return cboring.Unmarshal(&we.event, r)
}
