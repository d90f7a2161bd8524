// Command pedalcam captures photos on a tethered camera when a USB foot pedal
// is pressed and uploads them to the active lab user's Dropbox folder.
package main

import (
	"context"
	"log"

	"github.com/sweeney/pedalcam/internal/cli"
)

func main() {
	if err := cli.BuildCLI().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
