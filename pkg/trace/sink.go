// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"github.com/hashicorp/go-multierror"
)

// Sink consumes Events. Record must not block; failures are handled by the Sink itself.
type Sink interface {
	Record(e Event)
	Close() error
}

type multiSink []Sink

// Multi passes each Event to all given Sinks, in order.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (ms multiSink) Record(e Event) {
	for _, s := range ms {
		s.Record(e)
	}
}

func (ms multiSink) Close() (err error) {
	for _, s := range ms {
		if closeErr := s.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}
	return
}

type discard struct{}

// Discard drops all Events.
var Discard Sink = discard{}

func (discard) Record(Event) {}

func (discard) Close() error { return nil }

// Func adapts a function to a Sink without a Close action.
type Func func(Event)

// Record calls the function.
func (f Func) Record(e Event) {
	f(e)
}

// Close does nothing.
func (f Func) Close() error {
	return nil
}
