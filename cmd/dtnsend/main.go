// SPDX-FileCopyrightText: 2019 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/dtn7/dtn7-sim/pkg/agent"
)

func buildUrl(host, action string) string {
	u, _ := url.Parse(host)
	u.Path = path.Join(u.Path, "rest", action)
	return u.String()
}

func sendRequest(host, source, target string, payload []byte) (string, error) {
	req := agent.RestSendRequest{
		Source:  source,
		Target:  target,
		Size:    uint32(len(payload)),
		Payload: payload,
	}

	buff := new(bytes.Buffer)
	if err := json.NewEncoder(buff).Encode(req); err != nil {
		return "", err
	}

	resp, err := http.Post(buildUrl(host, "send"), "application/json", buff)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("response's status code is %d != 200", resp.StatusCode)
	}

	var respData agent.RestSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", err
	}

	if respData.Error != "" {
		return "", fmt.Errorf("JSON contains error: %v", respData.Error)
	}

	return respData.Bundle, nil
}

func showHelp() {
	fmt.Printf("dtnsend SOURCE TARGET\n\n")
	fmt.Printf("  sends data from stdin from the simulated SOURCE node to the TARGET node\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  dtnsend 1 23 <<< \"hello world\"\n")
	fmt.Printf("  DTNSIMRESTHOST=http://127.0.0.1:8080 dtnsend 1 any < file\n")
}

func main() {
	args := os.Args[1:]

	resthost := os.Getenv("DTNSIMRESTHOST")
	if resthost == "" {
		resthost = "http://127.0.0.1:8080"
	}

	if len(args) == 0 {
		showHelp()
		os.Exit(1)
	}

	switch args[0] {
	case "help", "--help", "-h":
		showHelp()

	default:
		if len(args) != 2 {
			fmt.Printf("Amount of parameters is wrong.\n\n")
			showHelp()
			os.Exit(1)
		}

		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("Failed to read stdin: %v\n", err)
			os.Exit(1)
		}

		id, err := sendRequest(resthost, args[0], args[1], payload)
		if err != nil {
			fmt.Printf("Sending failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(id)
	}
}
