// Package main prints the code token stylesheet for a chroma style. The
// site build writes the same file; this is for hosting it elsewhere.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/chroma/v2/styles"

	"github.com/sirily11/msbd5017-docs/internal/highlight"
)

func main() {
	name := "github-dark"
	if len(os.Args) > 1 {
		name = os.Args[1]
	}
	if _, ok := styles.Registry[name]; !ok {
		fmt.Fprintf(os.Stderr, "Style %q not found\n", name)
		os.Exit(1)
	}

	if _, err := fmt.Fprint(os.Stdout, highlight.ThemeCSS(styles.Get(name))); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSS: %v\n", err)
		os.Exit(1)
	}
}
