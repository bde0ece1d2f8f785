// The main package for the newscrawl executable.
package main

import (
	"github.com/hanlab/newscrawl/cmd"
)

func main() {
	cmd.Execute()
}
