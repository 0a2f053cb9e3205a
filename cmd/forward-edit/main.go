package main

import (
	"fmt"
	"os"

	forwardedit "github.com/thrawn01/forward-edit"
)

func main() {
	if err := forwardedit.RunCmd(os.Args, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
