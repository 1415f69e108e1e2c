// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/storage"
)

func testRecord(target bundle.NodeID, copies uint32) *storage.Record {
	h := bundle.Header{
		ID:         bundle.NewID(1, 0),
		Size:       100,
		Target:     target,
		Expiration: bundle.NeverExpires,
		NumCopies:  copies,
	}
	return storage.NewRecord(h, nil, copies)
}

func TestEligible(t *testing.T) {
	tests := []struct {
		target    bundle.NodeID
		copies    uint32
		requester bundle.NodeID
		eligible  bool
	}{
		{3, 0, 3, false},
		{3, 0, 2, false},
		{3, 1, 2, false},
		{3, 1, 3, true},
		{bundle.AnyNode, 1, 2, true},
		{bundle.AnyNode, 0, 2, false},
		{3, 2, 2, true},
		{3, 2, 3, true},
		{3, Unbounded, 2, true},
	}

	for _, test := range tests {
		if eligible := Eligible(testRecord(test.target, test.copies), test.requester); eligible != test.eligible {
			t.Errorf("target %v with %d copies requested by %v: eligible is %t",
				test.target, test.copies, test.requester, eligible)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name  string
		at    AlgorithmType
		valid bool
	}{
		{"epidemic", EpidemicAlgorithm, true},
		{"Epidemic", EpidemicAlgorithm, true},
		{"direct", DirectDeliveryAlgorithm, true},
		{"direct_delivery", DirectDeliveryAlgorithm, true},
		{"spray", SprayAndWaitAlgorithm, true},
		{" spray_and_wait ", SprayAndWaitAlgorithm, true},
		{"binary_spray", BinarySprayAlgorithm, true},
		{"MaxProp", MaxPropAlgorithm, true},
		{"prophet", 0, false},
		{"", 0, false},
	}

	for _, test := range tests {
		at, err := ParseAlgorithm(test.name)
		if test.valid {
			if err != nil {
				t.Errorf("parsing %q errored: %v", test.name, err)
			} else if at != test.at {
				t.Errorf("parsing %q resulted in %v, expected %v", test.name, at, test.at)
			}
		} else if !errors.Is(err, ErrUnknownAlgorithm) {
			t.Errorf("parsing %q did not fail with ErrUnknownAlgorithm: %v", test.name, err)
		}
	}
}

func TestSprayAndWaitSubtractCopies(t *testing.T) {
	tb := newTestbed(t, DefaultCoreConf(), 1)
	c := tb.core(1)

	tests := []struct {
		binary bool
		start  uint32
		kept   []uint32
		handed []uint32
	}{
		{true, 4, []uint32{2, 1, 0}, []uint32{2, 1, 1}},
		{true, 5, []uint32{2, 1, 0}, []uint32{3, 1, 1}},
		{false, 4, []uint32{3, 2, 1, 0}, []uint32{1, 1, 1, 1}},
		{false, 1, []uint32{0}, []uint32{1}},
	}

	for _, test := range tests {
		sw, err := NewSprayAndWait(c, SprayConfig{Multiplicity: test.start, Binary: test.binary})
		if err != nil {
			t.Fatal(err)
		}

		rec := testRecord(3, sw.InitialCopies())
		for i := range test.kept {
			out := rec.Header
			sw.SubtractCopies(rec, &out)

			if rec.RemainingCopies != test.kept[i] || out.NumCopies != test.handed[i] {
				t.Fatalf("%v handoff %d: kept %d and handed %d, expected %d and %d",
					sw, i, rec.RemainingCopies, out.NumCopies, test.kept[i], test.handed[i])
			}
		}
	}

	if _, err := NewSprayAndWait(c, SprayConfig{}); err == nil {
		t.Fatal("spray and wait without copies did not error")
	}
}

func TestMonotoneCopies(t *testing.T) {
	tb := newTestbed(t, DefaultCoreConf(), 1)
	c := tb.core(1)

	spray, _ := NewSprayAndWait(c, SprayConfig{Multiplicity: 16})
	binary, _ := NewSprayAndWait(c, SprayConfig{Multiplicity: 16, Binary: true})
	maxProp, _ := NewMaxProp(c, MaxPropConfig{})
	algorithms := []Algorithm{NewEpidemicRouting(c), NewDirectDelivery(c), spray, binary, maxProp}

	rng := rand.New(rand.NewSource(23))
	for _, algo := range algorithms {
		rec := testRecord(3, algo.InitialCopies())

		for i := 0; i < 64; i++ {
			requester := bundle.NodeID(2 + rng.Intn(2))
			if !Eligible(rec, requester) {
				continue
			}

			before := rec.RemainingCopies
			out := rec.Header
			algo.SubtractCopies(rec, &out)

			if rec.RemainingCopies > before {
				t.Fatalf("%v raised the copies from %d to %d", algo, before, rec.RemainingCopies)
			}
			if out.NumCopies == 0 {
				t.Fatalf("%v handed a bundle without copies", algo)
			}
		}
	}
}

func TestRoutingAlgorithmSelection(t *testing.T) {
	tb := newTestbed(t, DefaultCoreConf(), 1)
	c := tb.core(1)

	tests := []struct {
		conf RoutingConf
		name string
	}{
		{RoutingConf{Algorithm: "epidemic"}, "epidemic"},
		{RoutingConf{Algorithm: "direct"}, "direct"},
		{RoutingConf{Algorithm: "spray", SprayConf: SprayConfig{Multiplicity: 8}}, "spray(8)"},
		{RoutingConf{Algorithm: "binary_spray", SprayConf: SprayConfig{Multiplicity: 8}}, "binary_spray(8)"},
		{RoutingConf{Algorithm: "maxprop"}, "maxprop"},
	}

	for _, test := range tests {
		if algo, err := test.conf.RoutingAlgorithm(c); err != nil {
			t.Errorf("%v errored: %v", test.conf, err)
		} else if name := algo.String(); name != test.name {
			t.Errorf("%v resulted in %s", test.conf, name)
		}
	}

	broken := []RoutingConf{
		{Algorithm: "spray"},
		{Algorithm: "maxprop", MaxPropConf: MaxPropConfig{GossipInterval: "soon"}},
		{Algorithm: "maxprop", MaxPropConf: MaxPropConfig{GossipInterval: "-1s"}},
		{Algorithm: "unknown"},
	}
	for _, conf := range broken {
		if _, err := conf.RoutingAlgorithm(c); err == nil {
			t.Errorf("%v did not error", conf)
		}
	}
}

func TestCoreConfValidate(t *testing.T) {
	tests := []struct {
		modify func(*CoreConf)
		valid  bool
		is     error
	}{
		{func(*CoreConf) {}, true, nil},
		{func(c *CoreConf) { c.MaxControlPacket = 15 }, false, bundle.ErrPacketTooSmall},
		{func(c *CoreConf) { c.MaxControlPacket = 16 }, true, nil},
		{func(c *CoreConf) { c.MaxControlPacket = 16; c.Routing.Algorithm = "maxprop" }, false, bundle.ErrPacketTooSmall},
		{func(c *CoreConf) { c.MaxControlPacket = 100000 }, false, nil},
		{func(c *CoreConf) { c.Routing.Algorithm = "unknown" }, false, ErrUnknownAlgorithm},
		{func(c *CoreConf) { c.HelloInterval = 0 }, false, nil},
		{func(c *CoreConf) { c.StreamPort = c.DataPort }, false, nil},
	}

	for i, test := range tests {
		conf := DefaultCoreConf()
		test.modify(&conf)

		err := conf.Validate(65507)
		if test.valid && err != nil {
			t.Errorf("test %d errored: %v", i, err)
		} else if !test.valid && err == nil {
			t.Errorf("test %d did not error", i)
		} else if test.is != nil && !errors.Is(err, test.is) {
			t.Errorf("test %d errored with %v, expected %v", i, err, test.is)
		}
	}
}
