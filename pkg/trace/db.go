// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// dbEvent is the stored form of an Event, built on plain types for badgerhold queries.
type dbEvent struct {
	Seq      uint64
	Time     int64
	Kind     string
	Node     uint32
	Peer     uint32
	Bundle   uint64
	Size     uint32
	HopCount uint32
}

func newDbEvent(seq uint64, e Event) dbEvent {
	return dbEvent{
		Seq:      seq,
		Time:     int64(e.Time),
		Kind:     e.Kind.String(),
		Node:     uint32(e.Node),
		Peer:     uint32(e.Peer),
		Bundle:   uint64(e.Bundle),
		Size:     e.Size,
		HopCount: e.HopCount,
	}
}

func (de dbEvent) event() Event {
	kind, _ := ParseKind(de.Kind)
	return Event{
		Time:     time.Duration(de.Time),
		Kind:     kind,
		Node:     bundle.NodeID(de.Node),
		Peer:     bundle.NodeID(de.Peer),
		Bundle:   bundle.ID(de.Bundle),
		Size:     de.Size,
		HopCount: de.HopCount,
	}
}

// DB is a Sink storing Events in a badgerhold database to be queried afterwards.
type DB struct {
	bh  *badgerhold.Store
	seq uint64
}

// OpenDB creates or opens a trace database within a directory.
func OpenDB(dir string) (*DB, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	db := &DB{bh: bh}

	var last []dbEvent
	if err := bh.Find(&last, nil); err != nil {
		_ = bh.Close()
		return nil, err
	}
	for _, de := range last {
		if de.Seq >= db.seq {
			db.seq = de.Seq + 1
		}
	}
	return db, nil
}

// Insert an Event.
func (db *DB) Insert(e Event) error {
	de := newDbEvent(db.seq, e)
	if err := db.bh.Insert(de.Seq, de); err != nil {
		return err
	}
	db.seq++
	return nil
}

// Record an Event; errors are logged.
func (db *DB) Record(e Event) {
	if err := db.Insert(e); err != nil {
		log.WithFields(log.Fields{
			"event": e,
			"error": err,
		}).Warn("Storing trace event failed")
	}
}

func (db *DB) find(query *badgerhold.Query) ([]Event, error) {
	var des []dbEvent
	if err := db.bh.Find(&des, query); err != nil {
		return nil, err
	}

	sort.Slice(des, func(i, j int) bool { return des[i].Seq < des[j].Seq })

	events := make([]Event, len(des))
	for i, de := range des {
		events[i] = de.event()
	}
	return events, nil
}

// All Events in recording order.
func (db *DB) All() ([]Event, error) {
	return db.find(nil)
}

// ByNode returns all Events recorded at a node.
func (db *DB) ByNode(node bundle.NodeID) ([]Event, error) {
	return db.find(badgerhold.Where("Node").Eq(uint32(node)))
}

// ByBundle returns the trail of a bundle through the network.
func (db *DB) ByBundle(id bundle.ID) ([]Event, error) {
	return db.find(badgerhold.Where("Bundle").Eq(uint64(id)))
}

// ByKind returns all Events of a Kind.
func (db *DB) ByKind(kind Kind) ([]Event, error) {
	return db.find(badgerhold.Where("Kind").Eq(kind.String()))
}

// Close the DB. It must not be used afterwards.
func (db *DB) Close() error {
	return db.bh.Close()
}
