// The main package for the radarshot executable.
package main

import (
	"github.com/cryptoradar/radarshot/cmd"
)

// main defers all execution to the Cobra CLI layer.
func main() {
	cmd.Execute()
}
