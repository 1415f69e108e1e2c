// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

func TestEventFilter(t *testing.T) {
	e := trace.Event{Kind: trace.Forwarded, Node: 2, Peer: 3, Bundle: bundle.NewID(1, 4)}

	tests := []struct {
		field   string
		value   string
		matches bool
	}{
		{"node", "2", true},
		{"node", "3", false},
		{"bundle", "1-4", true},
		{"bundle", "1-5", false},
		{"kind", trace.Forwarded.String(), true},
		{"kind", trace.Delivered.String(), false},
	}

	for _, test := range tests {
		f, err := parseFilter(test.field, test.value)
		if err != nil {
			t.Fatal(err)
		}
		if m := f.matches(e); m != test.matches {
			t.Errorf("filter %s=%s matches: %t", test.field, test.value, m)
		}
	}

	if _, err := parseFilter("peer", "3"); err == nil {
		t.Error("unknown filter field was accepted")
	}
	if !(eventFilter{}).matches(e) {
		t.Error("empty filter does not match")
	}
}

func TestTargetOf(t *testing.T) {
	tests := []struct {
		name   string
		target bundle.NodeID
		valid  bool
	}{
		{"/tmp/out/23", 23, true},
		{"/tmp/out/23.txt", 23, true},
		{"any.bin", bundle.AnyNode, true},
		{"bundle-1-2", 0, false},
		{".hidden", 0, false},
	}

	for _, test := range tests {
		target, err := targetOf(test.name)
		if (err == nil) != test.valid {
			t.Errorf("targetOf(%q) errored: %v", test.name, err)
		} else if test.valid && target != test.target {
			t.Errorf("targetOf(%q) = %v, expected %v", test.name, target, test.target)
		}
	}
}
