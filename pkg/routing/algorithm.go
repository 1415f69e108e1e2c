// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/storage"
)

// ErrUnknownAlgorithm is returned for unsupported routing algorithm names.
var ErrUnknownAlgorithm = errors.New("unknown routing algorithm")

// Unbounded is the copy budget of policies without copy scarcity.
const Unbounded = math.MaxUint32

// Algorithm is an interface to specify routing policies for the bundle relay.
//
// Each hook is called by the Core at a specific step; policies embed noopHooks for those they ignore.
type Algorithm interface {
	fmt.Stringer

	// InitialCopies is the copy budget of a bundle created at this node.
	InitialCopies() uint32

	// ReceivedCopies is the copy budget of a received relay copy.
	ReceivedCopies(h bundle.Header) uint32

	// SubtractCopies is called exactly once whenever a stored bundle is handed to the transfer engine.
	// It lowers the Record's RemainingCopies and sets the outgoing header's NumCopies.
	SubtractCopies(rec *storage.Record, out *bundle.Header)

	// HelloProcessed is called after a neighbor's Hello was handled.
	HelloProcessed(neighbor bundle.NodeID, addr netip.Addr)

	// Gossip returns encounter records to be broadcast now, or nil.
	Gossip(now time.Duration) []bundle.EncounterRecord

	// EncounterReceived merges a neighbor's gossiped encounter record.
	EncounterReceived(er bundle.EncounterRecord)

	// OrderRequested imposes the transmission order on the eligible bundles of a request.
	OrderRequested(recs []*storage.Record, requester bundle.NodeID) []*storage.Record

	// RoundCompleted reports the amount of bytes handed over for a single request.
	RoundCompleted(bytes uint64)

	// MakeRoom may evict stored bundles for an incoming bundle.
	storage.Evictor
}

// noopHooks implements all optional hooks of an Algorithm as no-ops.
type noopHooks struct{}

func (noopHooks) HelloProcessed(bundle.NodeID, netip.Addr) {}

func (noopHooks) Gossip(time.Duration) []bundle.EncounterRecord { return nil }

func (noopHooks) EncounterReceived(bundle.EncounterRecord) {}

func (noopHooks) OrderRequested(recs []*storage.Record, _ bundle.NodeID) []*storage.Record {
	return recs
}

func (noopHooks) RoundCompleted(uint64) {}

func (noopHooks) MakeRoom(*storage.Store, uint32) {}

// Eligible checks if a stored bundle may be handed to a requester: either more than one copy is left,
// or the last copy goes to the bundle's target.
func Eligible(rec *storage.Record, requester bundle.NodeID) bool {
	switch {
	case rec.RemainingCopies >= 2:
		return true
	case rec.RemainingCopies == 1:
		return rec.Header.Target.Matches(requester)
	default:
		return false
	}
}

// AlgorithmType enumerates the implemented routing policies.
type AlgorithmType int

const (
	EpidemicAlgorithm AlgorithmType = iota
	DirectDeliveryAlgorithm
	SprayAndWaitAlgorithm
	BinarySprayAlgorithm
	MaxPropAlgorithm
)

var algorithmNames = map[string]AlgorithmType{
	"epidemic":        EpidemicAlgorithm,
	"direct":          DirectDeliveryAlgorithm,
	"direct_delivery": DirectDeliveryAlgorithm,
	"spray":           SprayAndWaitAlgorithm,
	"spray_and_wait":  SprayAndWaitAlgorithm,
	"binary_spray":    BinarySprayAlgorithm,
	"maxprop":         MaxPropAlgorithm,
}

// ParseAlgorithm from its case-insensitive name.
func ParseAlgorithm(name string) (AlgorithmType, error) {
	at, ok := algorithmNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return at, nil
}

func (at AlgorithmType) String() string {
	switch at {
	case EpidemicAlgorithm:
		return "epidemic"
	case DirectDeliveryAlgorithm:
		return "direct"
	case SprayAndWaitAlgorithm:
		return "spray"
	case BinarySprayAlgorithm:
		return "binary_spray"
	case MaxPropAlgorithm:
		return "maxprop"
	default:
		return "unknown"
	}
}

// RoutingConf contains necessary configuration data to initialize a routing algorithm.
type RoutingConf struct {
	// Algorithm is one of the implemented routing algorithms.
	//
	// One of: "epidemic", "direct", "spray", "binary_spray", "maxprop"
	Algorithm string `toml:"algorithm"`

	// SprayConf contains data to initialize "spray" or "binary_spray"
	SprayConf SprayConfig `toml:"spray"`

	// MaxPropConf contains data to initialize "maxprop"
	MaxPropConf MaxPropConfig `toml:"maxprop"`
}

// RoutingAlgorithm from its configuration.
func (routingConf RoutingConf) RoutingAlgorithm(c *Core) (algo Algorithm, err error) {
	at, err := ParseAlgorithm(routingConf.Algorithm)
	if err != nil {
		return
	}

	switch at {
	case EpidemicAlgorithm:
		algo = NewEpidemicRouting(c)

	case DirectDeliveryAlgorithm:
		algo = NewDirectDelivery(c)

	case SprayAndWaitAlgorithm:
		algo, err = NewSprayAndWait(c, routingConf.SprayConf)

	case BinarySprayAlgorithm:
		conf := routingConf.SprayConf
		conf.Binary = true
		algo, err = NewSprayAndWait(c, conf)

	case MaxPropAlgorithm:
		algo, err = NewMaxProp(c, routingConf.MaxPropConf)
	}
	return
}
