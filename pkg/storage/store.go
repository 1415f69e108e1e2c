// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"errors"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

var (
	// ErrStoreFull is returned if a Record does not fit even after expiration and eviction.
	ErrStoreFull = errors.New("bundle store is full")

	// ErrKnownBundle is returned when inserting an already stored bundle.
	ErrKnownBundle = errors.New("bundle is already stored")
)

// Evictor decides which records are dropped when an incoming bundle does not fit.
type Evictor interface {
	// MakeRoom may Evict records from the Store to make room for incoming bytes.
	MakeRoom(s *Store, incoming uint32)
}

// Store is a node's collection of not yet fully delivered bundles. Its usage always equals the sum of
// all stored bundle sizes.
type Store struct {
	capacity uint64
	usage    uint64

	records map[bundle.ID]*Record
	nextSeq uint64

	now      func() time.Duration
	evictor  Evictor
	onRemove func(*Record, RemovalReason)

	logger *log.Entry
}

// NewStore with a capacity in bytes, where zero means unlimited, and a virtual clock.
func NewStore(capacity uint64, now func() time.Duration) *Store {
	return &Store{
		capacity: capacity,
		records:  make(map[bundle.ID]*Record),
		now:      now,
		logger:   log.NewEntry(log.StandardLogger()),
	}
}

// SetEvictor which is consulted if an insertion exceeds the capacity.
func (s *Store) SetEvictor(evictor Evictor) {
	s.evictor = evictor
}

// SetRemovalHandler is called for each removed Record, after it was removed.
func (s *Store) SetRemovalHandler(f func(*Record, RemovalReason)) {
	s.onRemove = f
}

// SetLogger replaces the default logger, e.g., by one carrying the node's fields.
func (s *Store) SetLogger(logger *log.Entry) {
	s.logger = logger
}

// Capacity in bytes; zero is unlimited.
func (s *Store) Capacity() uint64 {
	return s.capacity
}

// Usage is the amount of stored bytes.
func (s *Store) Usage() uint64 {
	return s.usage
}

// Len is the amount of stored records.
func (s *Store) Len() int {
	return len(s.records)
}

func (s *Store) fits(size uint64) bool {
	return s.capacity == 0 || s.usage+size <= s.capacity
}

// Insert a new Record. Expired records are purged first. If the Record still does not fit, the Evictor
// is asked to make room. ErrStoreFull is returned if this was not sufficient.
func (s *Store) Insert(rec *Record) error {
	if _, ok := s.records[rec.ID()]; ok {
		return ErrKnownBundle
	}

	s.PurgeExpired()

	size := uint64(rec.Header.Size)
	if !s.fits(size) && s.evictor != nil && size <= s.capacity {
		s.evictor.MakeRoom(s, rec.Header.Size)
	}
	if !s.fits(size) {
		s.logger.WithFields(log.Fields{
			"bundle":   rec.ID(),
			"size":     size,
			"usage":    s.usage,
			"capacity": s.capacity,
		}).Debug("Store rejects bundle, no space left")
		return ErrStoreFull
	}

	rec.seq = s.nextSeq
	s.nextSeq++

	s.records[rec.ID()] = rec
	s.usage += size

	s.logger.WithFields(log.Fields{
		"bundle": rec.ID(),
		"copies": rec.RemainingCopies,
		"usage":  s.usage,
	}).Debug("Store inserted bundle")
	return nil
}

// Lookup a Record by its bundle ID.
func (s *Store) Lookup(id bundle.ID) (rec *Record, ok bool) {
	rec, ok = s.records[id]
	return
}

// Has checks if a bundle is stored.
func (s *Store) Has(id bundle.ID) bool {
	_, ok := s.records[id]
	return ok
}

// Remove a Record for the given reason. The return value reports if such a Record was stored.
func (s *Store) Remove(id bundle.ID, reason RemovalReason) bool {
	rec, ok := s.records[id]
	if !ok {
		return false
	}

	delete(s.records, id)
	s.usage -= uint64(rec.Header.Size)

	s.logger.WithFields(log.Fields{
		"bundle": id,
		"reason": reason,
		"usage":  s.usage,
	}).Debug("Store removed bundle")

	if s.onRemove != nil {
		s.onRemove(rec, reason)
	}
	return true
}

// Evict a Record for capacity reasons.
func (s *Store) Evict(id bundle.ID) bool {
	return s.Remove(id, Evicted)
}

// PurgeExpired removes all records whose expiration time has been reached.
func (s *Store) PurgeExpired() (purged int) {
	now := s.now()
	for _, rec := range s.Records() {
		if rec.Header.Expired(now) && s.Remove(rec.ID(), Expired) {
			purged++
		}
	}
	return
}

// Records returns all records in insertion order.
func (s *Store) Records() []*Record {
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	return recs
}

// Offerable returns the IDs of all unexpired records with at least one remaining copy, in insertion order.
func (s *Store) Offerable() []bundle.ID {
	s.PurgeExpired()

	var ids []bundle.ID
	for _, rec := range s.Records() {
		if rec.Offerable() {
			ids = append(ids, rec.ID())
		}
	}
	return ids
}
