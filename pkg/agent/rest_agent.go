// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Sender creates new bundles at a node.
type Sender interface {
	Send(source, target bundle.NodeID, size uint32, payload []byte) (bundle.ID, error)
}

// Inspector exposes a running simulation's nodes. All methods must be safe for concurrent use.
type Inspector interface {
	Sender

	// Now is the current virtual time.
	Now() time.Duration

	// Nodes returns the state of all running nodes, ordered by their NodeID.
	Nodes() []RestNode

	// Node returns a single node's state.
	Node(node bundle.NodeID) (RestNode, bool)

	// Store lists a node's stored bundles.
	Store(node bundle.NodeID) ([]RestRecord, bool)
}

// RestAgent is a RESTful ApplicationAgent. Clients register for a node and fetch the bundles delivered
// there. Furthermore, the simulation's nodes can be inspected and new bundles can be sent.
type RestAgent struct {
	router    *mux.Router
	inspector Inspector

	mutex sync.Mutex
	// map UUIDs to nodes and received bundles
	clients map[string]bundle.NodeID
	mailbox map[string][]RestBundle
}

// NewRestAgent creates a new RESTful ApplicationAgent, registering its routes at the router.
func NewRestAgent(router *mux.Router, inspector Inspector) (ra *RestAgent) {
	ra = &RestAgent{
		router:    router,
		inspector: inspector,
		clients:   make(map[string]bundle.NodeID),
		mailbox:   make(map[string][]RestBundle),
	}

	ra.router.HandleFunc("/register", ra.handleRegister).Methods(http.MethodPost)
	ra.router.HandleFunc("/unregister", ra.handleUnregister).Methods(http.MethodPost)
	ra.router.HandleFunc("/fetch", ra.handleFetch).Methods(http.MethodPost)
	ra.router.HandleFunc("/send", ra.handleSend).Methods(http.MethodPost)

	ra.router.HandleFunc("/time", ra.handleTime).Methods(http.MethodGet)
	ra.router.HandleFunc("/nodes", ra.handleNodes).Methods(http.MethodGet)
	ra.router.HandleFunc("/nodes/{id:[0-9]+}", ra.handleNode).Methods(http.MethodGet)
	ra.router.HandleFunc("/nodes/{id:[0-9]+}/store", ra.handleStore).Methods(http.MethodGet)

	return ra
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint, e.g., /rest.
func (ra *RestAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ra.router.ServeHTTP(w, r)
}

func writeJson(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write REST response")
	}
}

// handleRegister processes /register POST requests.
func (ra *RestAgent) handleRegister(w http.ResponseWriter, r *http.Request) {
	var (
		registerRequest  RestRegisterRequest
		registerResponse RestRegisterResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&registerRequest); jsonErr != nil {
		registerResponse.Error = jsonErr.Error()
	} else if node, nodeErr := bundle.ParseNodeID(registerRequest.Node); nodeErr != nil {
		registerResponse.Error = nodeErr.Error()
	} else {
		id := uuid.New().String()

		ra.mutex.Lock()
		ra.clients[id] = node
		ra.mutex.Unlock()

		registerResponse.UUID = id
	}

	log.WithFields(log.Fields{
		"request":  registerRequest,
		"response": registerResponse,
	}).Info("Processing REST registration")

	writeJson(w, http.StatusOK, registerResponse)
}

// handleUnregister processes /unregister POST requests.
func (ra *RestAgent) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var (
		unregisterRequest  RestUnregisterRequest
		unregisterResponse RestUnregisterResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&unregisterRequest); jsonErr != nil {
		log.WithError(jsonErr).Warn("Failed to parse REST unregistration request")
		unregisterResponse.Error = jsonErr.Error()
	} else {
		log.WithField("uuid", unregisterRequest.UUID).Info("Unregister REST client")

		ra.mutex.Lock()
		delete(ra.clients, unregisterRequest.UUID)
		delete(ra.mailbox, unregisterRequest.UUID)
		ra.mutex.Unlock()
	}

	writeJson(w, http.StatusOK, unregisterResponse)
}

// handleFetch processes /fetch POST requests, returning and clearing a client's mailbox.
func (ra *RestAgent) handleFetch(w http.ResponseWriter, r *http.Request) {
	var (
		fetchRequest  RestFetchRequest
		fetchResponse RestFetchResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&fetchRequest); jsonErr != nil {
		fetchResponse.Error = jsonErr.Error()
	} else {
		ra.mutex.Lock()
		if _, ok := ra.clients[fetchRequest.UUID]; !ok {
			fetchResponse.Error = fmt.Sprintf("unknown uuid %q", fetchRequest.UUID)
		} else {
			fetchResponse.Bundles = ra.mailbox[fetchRequest.UUID]
			delete(ra.mailbox, fetchRequest.UUID)
		}
		ra.mutex.Unlock()
	}

	if fetchResponse.Bundles == nil {
		fetchResponse.Bundles = []RestBundle{}
	}

	log.WithFields(log.Fields{
		"uuid":    fetchRequest.UUID,
		"bundles": len(fetchResponse.Bundles),
	}).Debug("Processing REST fetch")

	writeJson(w, http.StatusOK, fetchResponse)
}

// handleSend processes /send POST requests, creating a new bundle.
func (ra *RestAgent) handleSend(w http.ResponseWriter, r *http.Request) {
	var (
		sendRequest  RestSendRequest
		sendResponse RestSendResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&sendRequest); jsonErr != nil {
		sendResponse.Error = jsonErr.Error()
	} else if source, srcErr := bundle.ParseNodeID(sendRequest.Source); srcErr != nil {
		sendResponse.Error = srcErr.Error()
	} else if source == bundle.AnyNode {
		sendResponse.Error = "bundles cannot be sent from any node"
	} else if target, dstErr := bundle.ParseNodeID(sendRequest.Target); dstErr != nil {
		sendResponse.Error = dstErr.Error()
	} else {
		size := sendRequest.Size
		if sendRequest.Payload != nil {
			size = uint32(len(sendRequest.Payload))
		}

		if id, sendErr := ra.inspector.Send(source, target, size, sendRequest.Payload); sendErr != nil {
			sendResponse.Error = sendErr.Error()
		} else {
			sendResponse.Bundle = id.String()
		}
	}

	log.WithFields(log.Fields{
		"request":  sendRequest.Source + "->" + sendRequest.Target,
		"response": sendResponse,
	}).Info("Processing REST send")

	writeJson(w, http.StatusOK, sendResponse)
}

func (ra *RestAgent) handleTime(w http.ResponseWriter, _ *http.Request) {
	now := ra.inspector.Now()
	writeJson(w, http.StatusOK, RestClock{Time: now.String(), Elapsed: now})
}

func (ra *RestAgent) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := ra.inspector.Nodes()
	if nodes == nil {
		nodes = []RestNode{}
	}
	writeJson(w, http.StatusOK, nodes)
}

// nodeVar parses the {id} route variable.
func nodeVar(r *http.Request) (bundle.NodeID, error) {
	return bundle.ParseNodeID(mux.Vars(r)["id"])
}

func (ra *RestAgent) handleNode(w http.ResponseWriter, r *http.Request) {
	node, err := nodeVar(r)
	if err != nil {
		writeJson(w, http.StatusBadRequest, RestError{err.Error()})
		return
	}

	if info, ok := ra.inspector.Node(node); !ok {
		writeJson(w, http.StatusNotFound, RestError{fmt.Sprintf("unknown node %v", node)})
	} else {
		writeJson(w, http.StatusOK, info)
	}
}

func (ra *RestAgent) handleStore(w http.ResponseWriter, r *http.Request) {
	node, err := nodeVar(r)
	if err != nil {
		writeJson(w, http.StatusBadRequest, RestError{err.Error()})
		return
	}

	if recs, ok := ra.inspector.Store(node); !ok {
		writeJson(w, http.StatusNotFound, RestError{fmt.Sprintf("unknown node %v", node)})
	} else {
		if recs == nil {
			recs = []RestRecord{}
		}
		writeJson(w, http.StatusOK, recs)
	}
}

// Endpoints of all registered clients.
func (ra *RestAgent) Endpoints() (nodes []bundle.NodeID) {
	ra.mutex.Lock()
	defer ra.mutex.Unlock()

	for _, node := range ra.clients {
		nodes = append(nodes, node)
	}
	return
}

// Deliver queues BundleMessages for all clients registered for the receiving node.
func (ra *RestAgent) Deliver(msg Message) {
	bm, ok := msg.(BundleMessage)
	if !ok {
		return
	}

	ra.mutex.Lock()
	defer ra.mutex.Unlock()

	for id, node := range ra.clients {
		if node.Matches(bm.Node) {
			ra.mailbox[id] = append(ra.mailbox[id], newRestBundle(bm))
		}
	}
}
