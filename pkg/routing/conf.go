// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/cla"
)

// CoreConf configures a single node's Core.
type CoreConf struct {
	// Routing selects the routing algorithm.
	Routing RoutingConf

	// StoreCapacity is the maximum amount of stored bytes; zero is unlimited.
	StoreCapacity uint64

	// HelloInterval between two Hello advertisements. The first Hello is sent after a random delay
	// of at most HelloJitter.
	HelloInterval time.Duration
	HelloJitter   time.Duration

	// ResendInterval after which an unanswered Request may be issued again.
	ResendInterval time.Duration

	// ControlJitter is the maximum random delay of Requests and Acks.
	ControlJitter time.Duration

	// MaxControlPacket is the maximum size of a coalesced control packet.
	MaxControlPacket int

	// Mode selects the transfer engine.
	Mode cla.Mode

	// AckEnabled enables the broadcast of delivery acknowledgments.
	AckEnabled bool

	// VirtualPayload drops payload contents; only sizes are carried.
	VirtualPayload bool

	// BundleLifetime of locally created bundles.
	BundleLifetime time.Duration

	// MaxDatagram limits bundles in the datagram mode; zero takes the network's maximum.
	MaxDatagram int

	DataPort   uint16
	StreamPort uint16
}

// DefaultCoreConf is an epidemic node with acknowledgments in the datagram mode.
func DefaultCoreConf() CoreConf {
	return CoreConf{
		Routing:          RoutingConf{Algorithm: "epidemic"},
		HelloInterval:    time.Second,
		HelloJitter:      100 * time.Millisecond,
		ResendInterval:   5 * time.Second,
		ControlJitter:    10 * time.Millisecond,
		MaxControlPacket: 1400,
		Mode:             cla.DatagramMode,
		AckEnabled:       true,
		BundleLifetime:   5 * time.Minute,
		DataPort:         4556,
		StreamPort:       4557,
	}
}

// withDefaults fills all unset numeric fields with their default value.
func (conf CoreConf) withDefaults() CoreConf {
	def := DefaultCoreConf()

	if conf.Routing.Algorithm == "" {
		conf.Routing.Algorithm = def.Routing.Algorithm
	}
	if conf.HelloInterval == 0 {
		conf.HelloInterval = def.HelloInterval
	}
	if conf.ResendInterval == 0 {
		conf.ResendInterval = def.ResendInterval
	}
	if conf.MaxControlPacket == 0 {
		conf.MaxControlPacket = def.MaxControlPacket
	}
	if conf.BundleLifetime == 0 {
		conf.BundleLifetime = def.BundleLifetime
	}
	if conf.DataPort == 0 {
		conf.DataPort = def.DataPort
	}
	if conf.StreamPort == 0 {
		conf.StreamPort = def.StreamPort
	}
	return conf
}

// Validate this configuration against the network's maximum datagram size.
func (conf CoreConf) Validate(maxDatagram int) error {
	var errs error

	at, err := ParseAlgorithm(conf.Routing.Algorithm)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	if conf.HelloInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("hello interval %v must be positive", conf.HelloInterval))
	}
	if conf.HelloJitter < 0 || conf.ControlJitter < 0 {
		errs = multierror.Append(errs, fmt.Errorf("jitter must not be negative"))
	}
	if conf.BundleLifetime <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("bundle lifetime %v must be positive", conf.BundleLifetime))
	}

	if min := bundle.ControlHeaderLen + bundle.IDLen; conf.MaxControlPacket < min {
		errs = multierror.Append(errs, fmt.Errorf("%w: %d bytes, at least %d required",
			bundle.ErrPacketTooSmall, conf.MaxControlPacket, min))
	} else if at == MaxPropAlgorithm && conf.MaxControlPacket < bundle.MinEncounterPacketLen {
		errs = multierror.Append(errs, fmt.Errorf("%w: maxprop requires %d bytes for encounter records",
			bundle.ErrPacketTooSmall, bundle.MinEncounterPacketLen))
	}
	if conf.MaxControlPacket > maxDatagram {
		errs = multierror.Append(errs, fmt.Errorf("control packets of %d bytes exceed the maximum datagram of %d bytes",
			conf.MaxControlPacket, maxDatagram))
	}
	if conf.MaxDatagram > maxDatagram {
		errs = multierror.Append(errs, fmt.Errorf("datagram limit of %d bytes exceeds the network's %d bytes",
			conf.MaxDatagram, maxDatagram))
	}

	if conf.Mode != cla.DatagramMode && conf.Mode != cla.StreamMode {
		errs = multierror.Append(errs, fmt.Errorf("unknown transfer mode %v", conf.Mode))
	}
	if conf.DataPort == conf.StreamPort {
		errs = multierror.Append(errs, fmt.Errorf("data and stream port must differ, both are %d", conf.DataPort))
	}

	return errs
}
