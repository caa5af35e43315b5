// Command s3chunk runs and inspects chunked processing jobs from a shell.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/s3-chunkproc/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
