// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// fakeInspector serves a fixed set of nodes and records sent bundles.
type fakeInspector struct {
	sync.Mutex

	nodes map[bundle.NodeID]RestNode
	store map[bundle.NodeID][]RestRecord
	sent  []bundle.Header
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{
		nodes: map[bundle.NodeID]RestNode{
			1: {Node: "1", Address: "10.0.0.1", Routing: "epidemic"},
			2: {Node: "2", Address: "10.0.0.2", Routing: "epidemic", StoredBundles: 2, StoredBytes: 300},
		},
		store: map[bundle.NodeID][]RestRecord{
			2: {
				NewRestRecord(bundle.Header{ID: bundle.NewID(1, 0), Size: 100, Target: 3, Expiration: time.Minute}, 1, 0.5),
				NewRestRecord(bundle.Header{ID: bundle.NewID(1, 1), Size: 200, Target: 4, Expiration: bundle.NeverExpires}, 1, math.Inf(1)),
			},
		},
	}
}

func (fi *fakeInspector) Now() time.Duration {
	return 90 * time.Second
}

func (fi *fakeInspector) Nodes() (nodes []RestNode) {
	return []RestNode{fi.nodes[1], fi.nodes[2]}
}

func (fi *fakeInspector) Node(node bundle.NodeID) (RestNode, bool) {
	info, ok := fi.nodes[node]
	return info, ok
}

func (fi *fakeInspector) Store(node bundle.NodeID) ([]RestRecord, bool) {
	if _, ok := fi.nodes[node]; !ok {
		return nil, false
	}
	return fi.store[node], true
}

func (fi *fakeInspector) Send(source, target bundle.NodeID, size uint32, _ []byte) (bundle.ID, error) {
	fi.Lock()
	defer fi.Unlock()

	if _, ok := fi.nodes[source]; !ok {
		return 0, errors.New("unknown source")
	}

	id := bundle.NewID(source, uint32(len(fi.sent)))
	fi.sent = append(fi.sent, bundle.Header{ID: id, Size: size, Target: target})
	return id, nil
}

func newRestServer(t *testing.T) (*RestAgent, *fakeInspector, *httptest.Server) {
	t.Helper()

	r := mux.NewRouter()
	inspector := newFakeInspector()
	restAgent := NewRestAgent(r.PathPrefix("/rest").Subrouter(), inspector)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return restAgent, inspector, server
}

func postJson(t *testing.T, url string, req, resp interface{}) {
	t.Helper()

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(req); err != nil {
		t.Fatal(err)
	}

	if httpResp, err := http.Post(url, "application/json", buf); err != nil {
		t.Fatal(err)
	} else {
		defer httpResp.Body.Close()
		if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
			t.Fatal(err)
		}
	}
}

func getJson(t *testing.T, url string, resp interface{}) int {
	t.Helper()

	httpResp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		t.Fatal(err)
	}
	return httpResp.StatusCode
}

func TestRestAgentRegistrationCycle(t *testing.T) {
	restAgent, _, server := newRestServer(t)

	// Register new client
	var registerResponse RestRegisterResponse
	postJson(t, server.URL+"/rest/register", RestRegisterRequest{Node: "2"}, &registerResponse)
	if registerResponse.Error != "" {
		t.Fatal(registerResponse.Error)
	}

	// Check registration
	if !AppAgentHasEndpoint(restAgent, 2) {
		t.Fatal("endpoint was not registered")
	}

	// Deliver bundles and fetch them
	restAgent.Deliver(testBundle(1, 2, 0, []byte("hello world")))
	restAgent.Deliver(testBundle(1, 3, 1, []byte("not for us")))

	var fetchResponse RestFetchResponse
	postJson(t, server.URL+"/rest/fetch", RestFetchRequest{UUID: registerResponse.UUID}, &fetchResponse)
	if fetchResponse.Error != "" {
		t.Fatal(fetchResponse.Error)
	} else if len(fetchResponse.Bundles) != 1 {
		t.Fatalf("expected one bundle, got %v", fetchResponse.Bundles)
	} else if b := fetchResponse.Bundles[0]; b.ID != "1-0" || string(b.Payload) != "hello world" || b.Node != "2" {
		t.Fatalf("unexpected bundle %v", b)
	}

	postJson(t, server.URL+"/rest/fetch", RestFetchRequest{UUID: registerResponse.UUID}, &fetchResponse)
	if len(fetchResponse.Bundles) != 0 {
		t.Fatalf("fetched bundles twice: %v", fetchResponse.Bundles)
	}

	// Unregister client
	var unregisterResponse RestUnregisterResponse
	postJson(t, server.URL+"/rest/unregister", RestUnregisterRequest{UUID: registerResponse.UUID}, &unregisterResponse)

	if AppAgentHasEndpoint(restAgent, 2) {
		t.Fatal("endpoint is still registered")
	}

	postJson(t, server.URL+"/rest/fetch", RestFetchRequest{UUID: registerResponse.UUID}, &fetchResponse)
	if fetchResponse.Error == "" {
		t.Fatal("fetching for an unregistered client did not fail")
	}
}

func TestRestAgentIllegalRegistration(t *testing.T) {
	restAgent, _, server := newRestServer(t)

	var registerResponse RestRegisterResponse
	postJson(t, server.URL+"/rest/register", RestRegisterRequest{Node: "uff"}, &registerResponse)
	if registerResponse.Error == "" {
		t.Fatal("expected error due to an illegal node id")
	}

	if endpoints := restAgent.Endpoints(); len(endpoints) != 0 {
		t.Fatalf("illegal registration resulted in endpoints %v", endpoints)
	}
}

func TestRestAgentSend(t *testing.T) {
	_, inspector, server := newRestServer(t)

	var sendResponse RestSendResponse
	postJson(t, server.URL+"/rest/send", RestSendRequest{Source: "1", Target: "any", Size: 512}, &sendResponse)
	if sendResponse.Error != "" {
		t.Fatal(sendResponse.Error)
	} else if sendResponse.Bundle != "1-0" {
		t.Fatalf("unexpected bundle id %q", sendResponse.Bundle)
	}

	postJson(t, server.URL+"/rest/send", RestSendRequest{Source: "2", Target: "1", Payload: []byte("foo")}, &sendResponse)
	if sendResponse.Error != "" {
		t.Fatal(sendResponse.Error)
	}

	inspector.Lock()
	sent := inspector.sent
	inspector.Unlock()

	if len(sent) != 2 {
		t.Fatalf("expected two sent bundles, got %v", sent)
	} else if sent[0].Target != bundle.AnyNode || sent[0].Size != 512 {
		t.Fatalf("unexpected first bundle %v", sent[0])
	} else if sent[1].Size != 3 {
		t.Fatalf("payload did not define the size: %v", sent[1])
	}

	for _, req := range []RestSendRequest{
		{Source: "any", Target: "1", Size: 1},
		{Source: "1", Target: "nobody", Size: 1},
		{Source: "5", Target: "1", Size: 1},
	} {
		sendResponse = RestSendResponse{}
		postJson(t, server.URL+"/rest/send", req, &sendResponse)
		if sendResponse.Error == "" {
			t.Errorf("sending %v did not fail", req)
		}
	}
}

func TestRestAgentInspection(t *testing.T) {
	_, _, server := newRestServer(t)

	var clock RestClock
	if status := getJson(t, server.URL+"/rest/time", &clock); status != http.StatusOK {
		t.Fatalf("/time returned %d", status)
	} else if clock.Elapsed != 90*time.Second || clock.Time != "1m30s" {
		t.Fatalf("unexpected clock %v", clock)
	}

	var nodes []RestNode
	if status := getJson(t, server.URL+"/rest/nodes", &nodes); status != http.StatusOK {
		t.Fatalf("/nodes returned %d", status)
	} else if len(nodes) != 2 || nodes[0].Node != "1" || nodes[1].Node != "2" {
		t.Fatalf("unexpected nodes %v", nodes)
	}

	var node RestNode
	if status := getJson(t, server.URL+"/rest/nodes/2", &node); status != http.StatusOK {
		t.Fatalf("/nodes/2 returned %d", status)
	} else if node.StoredBundles != 2 || node.StoredBytes != 300 {
		t.Fatalf("unexpected node %v", node)
	}

	var restErr RestError
	if status := getJson(t, server.URL+"/rest/nodes/23", &restErr); status != http.StatusNotFound {
		t.Fatalf("unknown node returned %d", status)
	} else if restErr.Error == "" {
		t.Fatal("unknown node has no error message")
	}

	var recs []RestRecord
	if status := getJson(t, server.URL+"/rest/nodes/2/store", &recs); status != http.StatusOK {
		t.Fatalf("/nodes/2/store returned %d", status)
	} else if len(recs) != 2 {
		t.Fatalf("unexpected store %v", recs)
	} else if recs[0].Cost == nil || *recs[0].Cost != 0.5 {
		t.Fatalf("finite cost was not kept: %v", recs[0])
	} else if recs[1].Cost != nil || recs[1].Expiration != "never" {
		t.Fatalf("unexpected record for an unreachable target: %v", recs[1])
	}

	if status := getJson(t, server.URL+"/rest/nodes/1/store", &recs); status != http.StatusOK {
		t.Fatalf("/nodes/1/store returned %d", status)
	} else if recs == nil || len(recs) != 0 {
		t.Fatalf("empty store is not an empty list: %v", recs)
	}
}
