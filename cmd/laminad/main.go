// Command laminad runs the Lamina S3-compatible object storage server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LoyaltyPointHQ/lamina/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
