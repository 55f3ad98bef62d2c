package main

import (
	"os"

	"github.com/openvolunteer/volmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
