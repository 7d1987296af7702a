// Command assistctl runs actions against the carepilot actions endpoint, either
// directly or by extracting them from an assistant reply.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
