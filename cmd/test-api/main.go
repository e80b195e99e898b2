// Package main is a post-deployment smoke test. It calls the unauthenticated
// health, readiness and version endpoints and, when ASSESS_API_KEY is set, the
// templates listing, printing each status code and body.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false

	paths := []string{"/health", "/ready", "/version"}
	key := os.Getenv("ASSESS_API_KEY")
	if key != "" {
		paths = append(paths, "/api/v1/templates")
	}

	for _, p := range paths {
		req, err := http.NewRequest(http.MethodGet, *baseURL+p, nil)
		if err != nil {
			fmt.Printf("%s: %v\n", p, err)
			failed = true
			continue
		}
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("%s: %v\n", p, err)
			failed = true
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("%s: error reading body: %v\n", p, err)
			failed = true
			continue
		}

		fmt.Printf("%s -> %d\n%s\n\n", p, resp.StatusCode, body)
		if resp.StatusCode >= 400 {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
