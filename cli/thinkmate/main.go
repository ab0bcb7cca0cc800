package main

import (
	"os"

	thinkmatecmder "github.com/vincenthz/ThinkMate/cmd/thinkmate"
)

func main() {
	cmd := thinkmatecmder.NewThinkmateCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
