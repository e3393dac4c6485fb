package main

import (
	"os"

	"github.com/toastdotdev/toast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
