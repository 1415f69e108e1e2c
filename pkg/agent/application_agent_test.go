// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"testing"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

func TestAppAgentContainsEndpoint(t *testing.T) {
	appAgent := newMockAgent([]bundle.NodeID{1, 2})

	tests := []struct {
		nodes []bundle.NodeID
		valid bool
	}{
		{[]bundle.NodeID{}, false},
		{[]bundle.NodeID{1}, true},
		{[]bundle.NodeID{2}, true},
		{[]bundle.NodeID{1, 2}, true},
		{[]bundle.NodeID{2, 1}, true},
		{[]bundle.NodeID{2, 2}, true},
		{[]bundle.NodeID{3, 2}, true},
		{[]bundle.NodeID{3, 4}, false},
		{[]bundle.NodeID{3, 4, 2}, true},
	}

	for _, test := range tests {
		contains := AppAgentContainsEndpoint(appAgent, test.nodes)
		if contains != test.valid {
			t.Fatalf("errored for %v", test.nodes)
		}
	}
}

func TestAppAgentWildcardEndpoint(t *testing.T) {
	appAgent := newMockAgent([]bundle.NodeID{bundle.AnyNode})

	for _, node := range []bundle.NodeID{1, 2, 23, 42} {
		if !AppAgentHasEndpoint(appAgent, node) {
			t.Fatalf("wildcard agent does not answer to %v", node)
		}
	}

	if AppAgentContainsEndpoint(appAgent, nil) {
		t.Fatal("wildcard agent answers to no nodes at all")
	}
}
