// Package main generates an organization API key offline. It prints the full key
// together with the bcrypt hash and lookup prefix that belong in the api_keys table,
// so keys can be seeded without running the server.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/assessment-platform/assessment-api/internal/auth"
)

func main() {
	prefix := flag.String("prefix", auth.DefaultKeyPrefix, "key prefix")
	flag.Parse()

	key, hash, displayPrefix, err := auth.GenerateAPIKey(*prefix)
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}

	fmt.Printf("key:        %s\n", key)
	fmt.Printf("key_hash:   %s\n", hash)
	fmt.Printf("key_prefix: %s\n", displayPrefix)
}
