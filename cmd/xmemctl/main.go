package main

import (
	"fmt"
	"os"

	"github.com/xmemkit/xmemkit/cmd/xmemctl/cmds"
)

// version is bumped by hand; there is no build-stamped value to embed
// since this module has no release pipeline of its own.
const version = "0.1.0"

func main() {
	root := cmds.New(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
