// Command sqllint checks that every SQL statement constant carries a unique
// "--sql <uuid>" audit marker on its first line. The marker is what the SQL
// runner logs, so a missing or reused one makes statements untraceable.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	violations, err := lintPaths(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	for _, v := range violations {
		fmt.Fprintln(os.Stderr, v)
	}
	if n := len(violations); n > 0 {
		fmt.Fprintf(os.Stderr, "sqllint: %d statement(s) without a unique audit marker\n", n)
		os.Exit(2)
	}
}
