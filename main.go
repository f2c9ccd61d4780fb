package main

import (
	"github.com/TheClusterFlux/replay-hub/cmd"
)

func main() {
	cmd.Execute()
}
