package main

import (
	"os"

	"github.com/scalarorg/ismp-relayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
