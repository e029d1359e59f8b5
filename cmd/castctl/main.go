package main

import (
	"fmt"
	"os"

	"go2tv.app/castbeam/cmd/castctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
