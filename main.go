// Scout - reconnaissance graph builder.
//
// Scout expands seed values (domains, URIs, organisations) into a graph of
// discovered entities by running transforms against public services.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/scout-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
