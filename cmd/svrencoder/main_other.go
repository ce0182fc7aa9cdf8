//go:build !windows

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "svrencoder: the two-process shared-memory encoder is windows-only; use svrcapture --codec pipe instead")
	os.Exit(1)
}
