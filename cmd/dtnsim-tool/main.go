// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// printUsage of dtnsim-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s show|query|exchange|ping:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s show -|trace-file [node|bundle|kind value]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the events of a trace file as JSON lines, optionally filtered.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s query trace-db node|bundle|kind value\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the matching events of a trace database as JSON lines.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s exchange websocket node directory\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s registers itself for a node on the given websocket and writes\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  delivered bundles in the directory. A new file named after a target node,\n")
	_, _ = fmt.Fprintf(os.Stderr, "  e.g., \"23\" or \"23.txt\", is sent as a bundle's payload to this node.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s ping websocket node target\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends a small bundle every second from node to target and reports the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  events of the node.\n\n")

	os.Exit(1)
}

// printFatal logs an error and exits afterwards.
func printFatal(err error, msg string) {
	log.WithError(err).Fatal(msg)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "show":
		showTrace(os.Args[2:])

	case "query":
		queryTrace(os.Args[2:])

	case "exchange":
		startExchange(os.Args[2:])

	case "ping":
		ping(os.Args[2:])

	default:
		printUsage()
	}
}
