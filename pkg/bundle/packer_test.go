// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func makeIDs(n int) []ID {
	ids := make([]ID, n)
	for i := range ids {
		ids[i] = NewID(1, uint32(i))
	}
	return ids
}

func collectIDs(t *testing.T, packets [][]byte, mt MessageType) (ids []ID, records int) {
	for _, pkt := range packets {
		msgs, err := ParsePacket(pkt)
		if err != nil {
			t.Fatal(err)
		}

		for _, msg := range msgs {
			if msg.Type != mt {
				t.Fatalf("Unexpected message %v", msg)
			}

			msgIds, err := msg.IDs()
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, msgIds...)
			records++
		}
	}
	return
}

func TestNewPackerTooSmall(t *testing.T) {
	if _, err := NewPacker(1, ControlHeaderLen+IDLen-1); !errors.Is(err, ErrPacketTooSmall) {
		t.Fatalf("Expected ErrPacketTooSmall, got %v", err)
	}
	if _, err := NewPacker(1, ControlHeaderLen+IDLen); err != nil {
		t.Fatal(err)
	}
}

func TestPackerIDs(t *testing.T) {
	tests := []struct {
		maxSize int
		ids     int
		packets int
	}{
		// An empty list results in a single empty record.
		{64, 0, 1},
		{16, 1, 1},
		{16, 3, 3},
		// (64 - 8) / 8 = 7 identifiers per packet
		{64, 7, 1},
		{64, 8, 2},
		{64, 15, 3},
		{1500, 1000, 6},
	}

	for _, test := range tests {
		p, err := NewPacker(1, test.maxSize)
		if err != nil {
			t.Fatal(err)
		}

		ids := makeIDs(test.ids)
		p.AddIDs(Hello, ids)
		packets := p.Packets()

		if l := len(packets); l != test.packets {
			t.Errorf("%d ids in %d byte packets: %d packets, expected %d", test.ids, test.maxSize, l, test.packets)
		}
		for _, pkt := range packets {
			if len(pkt) > test.maxSize {
				t.Errorf("Packet exceeds maximum size: %d > %d", len(pkt), test.maxSize)
			}
		}

		got, _ := collectIDs(t, packets, Hello)
		if len(got) != len(ids) || (len(ids) > 0 && !reflect.DeepEqual(got, ids)) {
			t.Errorf("Identifiers changed: %v, expected %v", got, ids)
		}

		if again := p.Packets(); len(again) != 0 {
			t.Errorf("Packer was not reset, %d packets left", len(again))
		}
	}
}

func TestPackerCoalescing(t *testing.T) {
	p, err := NewPacker(7, 64)
	if err != nil {
		t.Fatal(err)
	}

	p.AddIDs(Request, makeIDs(2))
	p.AddIDs(Ack, makeIDs(3))
	packets := p.Packets()

	if len(packets) != 1 {
		t.Fatalf("Expected one coalesced packet, got %d", len(packets))
	}

	msgs, err := ParsePacket(packets[0])
	if err != nil {
		t.Fatal(err)
	} else if len(msgs) != 2 {
		t.Fatalf("Expected two records, got %d", len(msgs))
	}

	if msgs[0].Type != Request || msgs[0].Sender != 7 || msgs[0].Length != 16 {
		t.Errorf("First record is %v", msgs[0])
	}
	if msgs[1].Type != Ack || msgs[1].Length != 24 {
		t.Errorf("Second record is %v", msgs[1])
	}
}

func TestPackerEncounter(t *testing.T) {
	er := NewEncounterRecord(3, 5*time.Second)
	for i := 0; i < 10; i++ {
		er.Probabilities[NodeID(i)] = float64(i) / 16
	}

	p, err := NewPacker(3, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.AddEncounter(er); err != nil {
		t.Fatal(err)
	}

	// (64 - 8 - 16) / 8 = 5 entries per record and packet
	packets := p.Packets()
	if len(packets) != 2 {
		t.Fatalf("Expected 2 packets, got %d", len(packets))
	}

	merged := NewEncounterRecord(0, 0)
	for _, pkt := range packets {
		msgs, err := ParsePacket(pkt)
		if err != nil {
			t.Fatal(err)
		}
		for _, msg := range msgs {
			frag, err := msg.Encounter()
			if err != nil {
				t.Fatal(err)
			}
			if frag.Owner != er.Owner || frag.Timestamp != er.Timestamp {
				t.Fatalf("Fragment %v does not match %v", frag, er)
			}
			merged.Owner, merged.Timestamp = frag.Owner, frag.Timestamp
			for target, prob := range frag.Probabilities {
				merged.Probabilities[target] = prob
			}
		}
	}

	if !reflect.DeepEqual(merged, er) {
		t.Fatalf("Merged record %v differs from %v", merged, er)
	}

	small, _ := NewPacker(3, MinEncounterPacketLen-1)
	if err := small.AddEncounter(er); !errors.Is(err, ErrPacketTooSmall) {
		t.Fatalf("Expected ErrPacketTooSmall, got %v", err)
	}
}

func TestParsePacketErrors(t *testing.T) {
	p, _ := NewPacker(1, 64)
	p.AddIDs(Hello, makeIDs(2))
	pkt := p.Packets()[0]

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", pkt[:ControlHeaderLen-1]},
		{"truncated payload", pkt[:len(pkt)-1]},
		{"unknown type", append([]byte{0, 0, 0, 1, 0, 9, 0, 0}, pkt...)},
	}

	for _, test := range tests {
		if _, err := ParsePacket(test.data); err == nil {
			t.Errorf("%s: parsing did not error", test.name)
		}
	}

	if _, err := (Message{ControlHeader: ControlHeader{Type: Hello}, Payload: []byte{1, 2, 3}}).IDs(); err == nil {
		t.Error("Misaligned identifier list did not error")
	}
}
