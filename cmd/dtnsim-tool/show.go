// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// eventFilter selects Events by a node, a bundle or a kind.
type eventFilter struct {
	field string

	node bundle.NodeID
	id   bundle.ID
	kind trace.Kind
}

func parseFilter(field, value string) (f eventFilter, err error) {
	f.field = field

	switch field {
	case "node":
		f.node, err = bundle.ParseNodeID(value)
	case "bundle":
		f.id, err = bundle.ParseID(value)
	case "kind":
		f.kind, err = trace.ParseKind(value)
	default:
		err = fmt.Errorf("unknown filter %q", field)
	}
	return
}

func (f eventFilter) matches(e trace.Event) bool {
	switch f.field {
	case "node":
		return e.Node == f.node
	case "bundle":
		return e.Bundle == f.id
	case "kind":
		return e.Kind == f.kind
	default:
		return true
	}
}

func printEvents(events []trace.Event) {
	enc := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			printFatal(err, "Marshaling JSON errored")
		}
	}
}

// showTrace for the "show" CLI option.
func showTrace(args []string) {
	if len(args) != 1 && len(args) != 3 {
		printUsage()
	}

	var (
		input = args[0]

		err    error
		f      io.ReadCloser
		filter eventFilter
		tr     *trace.Reader
	)

	if len(args) == 3 {
		if filter, err = parseFilter(args[1], args[2]); err != nil {
			printFatal(err, "Parsing filter errored")
		}
	}

	if input == "-" {
		f = os.Stdin
	} else if f, err = os.Open(input); err != nil {
		printFatal(err, "Opening file for reading errored")
	}
	defer f.Close()

	if tr, err = trace.NewReader(f); err != nil {
		printFatal(err, "Opening trace errored")
	}

	for {
		e, err := tr.Next()
		if err == io.EOF {
			return
		} else if err != nil {
			printFatal(err, "Reading trace errored")
		}

		if filter.matches(e) {
			printEvents([]trace.Event{e})
		}
	}
}

// queryTrace for the "query" CLI option.
func queryTrace(args []string) {
	if len(args) != 3 {
		printUsage()
	}

	filter, err := parseFilter(args[1], args[2])
	if err != nil {
		printFatal(err, "Parsing filter errored")
	}

	db, err := trace.OpenDB(args[0])
	if err != nil {
		printFatal(err, "Opening trace database errored")
	}
	defer db.Close()

	var events []trace.Event
	switch filter.field {
	case "node":
		events, err = db.ByNode(filter.node)
	case "bundle":
		events, err = db.ByBundle(filter.id)
	case "kind":
		events, err = db.ByKind(filter.kind)
	}
	if err != nil {
		printFatal(err, "Querying trace database errored")
	}

	printEvents(events)
}
