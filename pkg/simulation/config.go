// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package simulation

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/cla"
	"github.com/dtn7/dtn7-sim/pkg/routing"
	"github.com/dtn7/dtn7-sim/pkg/sim"
)

// Config describes a whole scenario.
type Config struct {
	// Seed of the scheduler's random number generator.
	Seed int64

	// Duration of the simulated virtual time, e.g., "1h".
	Duration string

	// Pace is the amount of virtual seconds simulated per real second. Zero runs as fast as possible.
	Pace float64

	Network  networkConf
	Defaults nodeConf
	Node     []nodeConf
	Contact  []contactConf
	Traffic  []trafficConf
	Trace    traceConf
}

// networkConf describes the Network-configuration block.
type networkConf struct {
	Latency      string
	Bandwidth    uint64
	MaxDatagram  int `toml:"max-datagram"`
	StreamBuffer int `toml:"stream-buffer"`
}

// nodeConf describes a node, or with Count a range of nodes starting at Id. Unset values are taken from
// the defaults block.
type nodeConf struct {
	Id    uint32
	Count uint32

	Routing          routing.RoutingConf
	StoreCapacity    uint64 `toml:"store-capacity"`
	HelloInterval    string `toml:"hello-interval"`
	HelloJitter      string `toml:"hello-jitter"`
	ResendInterval   string `toml:"resend-interval"`
	ControlJitter    string `toml:"control-jitter"`
	MaxControlPacket int    `toml:"max-control-packet"`
	Mode             string
	Ack              *bool
	VirtualPayload   *bool  `toml:"virtual-payload"`
	BundleLifetime   string `toml:"bundle-lifetime"`
	MaxDatagram      int    `toml:"max-datagram"`
}

// contactConf describes a link between two nodes from Start to End. Without an End, the link stays up.
type contactConf struct {
	A     uint32
	B     uint32
	Start string
	End   string
}

// trafficConf describes bundles sent periodically from one node to another or to "any" node.
type trafficConf struct {
	From     uint32
	To       string
	Start    string
	Interval string
	Count    int
	Size     uint32
	// Payload creates real payloads instead of virtual ones.
	Payload bool
}

// traceConf describes the trace sinks.
type traceConf struct {
	// File is the path of a compressed trace file.
	File string
	// Db is the directory of a queryable trace database.
	Db string
}

// LoadConfig reads a Config from a TOML file.
func LoadConfig(filename string) (conf Config, err error) {
	_, err = toml.DecodeFile(filename, &conf)
	return
}

// parseDuration parses a configured duration; an empty string results in the fallback.
func parseDuration(name, value string, fallback time.Duration, errs *error) time.Duration {
	if value == "" {
		return fallback
	}

	dur, err := time.ParseDuration(value)
	if err != nil {
		*errs = multierror.Append(*errs, fmt.Errorf("%s: %w", name, err))
		return fallback
	} else if dur < 0 {
		*errs = multierror.Append(*errs, fmt.Errorf("%s: negative duration %v", name, dur))
		return fallback
	}
	return dur
}

// networkConf converts the network block, starting from sim.DefaultNetworkConf.
func (nc networkConf) networkConf(errs *error) sim.NetworkConf {
	conf := sim.DefaultNetworkConf()
	conf.Latency = parseDuration("network.latency", nc.Latency, conf.Latency, errs)

	if nc.Bandwidth > 0 {
		conf.Bandwidth = nc.Bandwidth
	}
	if nc.MaxDatagram > 0 {
		conf.MaxDatagram = nc.MaxDatagram
	}
	if nc.StreamBuffer > 0 {
		conf.StreamBuffer = nc.StreamBuffer
	}
	return conf
}

// merge fills all unset values of a node from the defaults.
func (nc nodeConf) merge(def nodeConf) nodeConf {
	if nc.Routing.Algorithm == "" {
		nc.Routing = def.Routing
	}
	if nc.StoreCapacity == 0 {
		nc.StoreCapacity = def.StoreCapacity
	}
	if nc.HelloInterval == "" {
		nc.HelloInterval = def.HelloInterval
	}
	if nc.HelloJitter == "" {
		nc.HelloJitter = def.HelloJitter
	}
	if nc.ResendInterval == "" {
		nc.ResendInterval = def.ResendInterval
	}
	if nc.ControlJitter == "" {
		nc.ControlJitter = def.ControlJitter
	}
	if nc.MaxControlPacket == 0 {
		nc.MaxControlPacket = def.MaxControlPacket
	}
	if nc.Mode == "" {
		nc.Mode = def.Mode
	}
	if nc.Ack == nil {
		nc.Ack = def.Ack
	}
	if nc.VirtualPayload == nil {
		nc.VirtualPayload = def.VirtualPayload
	}
	if nc.BundleLifetime == "" {
		nc.BundleLifetime = def.BundleLifetime
	}
	if nc.MaxDatagram == 0 {
		nc.MaxDatagram = def.MaxDatagram
	}
	return nc
}

// coreConf converts a node block into a routing.CoreConf, starting from routing.DefaultCoreConf.
func (nc nodeConf) coreConf(errs *error) routing.CoreConf {
	conf := routing.DefaultCoreConf()
	name := fmt.Sprintf("node %d", nc.Id)

	if nc.Routing.Algorithm != "" {
		conf.Routing = nc.Routing
	}
	conf.StoreCapacity = nc.StoreCapacity

	conf.HelloInterval = parseDuration(name+" hello-interval", nc.HelloInterval, conf.HelloInterval, errs)
	conf.HelloJitter = parseDuration(name+" hello-jitter", nc.HelloJitter, conf.HelloJitter, errs)
	conf.ResendInterval = parseDuration(name+" resend-interval", nc.ResendInterval, conf.ResendInterval, errs)
	conf.ControlJitter = parseDuration(name+" control-jitter", nc.ControlJitter, conf.ControlJitter, errs)
	conf.BundleLifetime = parseDuration(name+" bundle-lifetime", nc.BundleLifetime, conf.BundleLifetime, errs)

	if nc.MaxControlPacket > 0 {
		conf.MaxControlPacket = nc.MaxControlPacket
	}
	if nc.MaxDatagram > 0 {
		conf.MaxDatagram = nc.MaxDatagram
	}

	if mode, err := cla.ParseMode(nc.Mode); err != nil {
		*errs = multierror.Append(*errs, fmt.Errorf("%s: %w", name, err))
	} else {
		conf.Mode = mode
	}

	if nc.Ack != nil {
		conf.AckEnabled = *nc.Ack
	}
	if nc.VirtualPayload != nil {
		conf.VirtualPayload = *nc.VirtualPayload
	}
	return conf
}

// nodes lists all node ids of this block.
func (nc nodeConf) nodes() (nodes []bundle.NodeID) {
	count := nc.Count
	if count == 0 {
		count = 1
	}

	for i := uint32(0); i < count; i++ {
		nodes = append(nodes, bundle.NodeID(nc.Id+i))
	}
	return
}
