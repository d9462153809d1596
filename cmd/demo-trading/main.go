package main

import (
	"os"

	"github.com/STTM-NSU/demo-trading/cmd/demo-trading/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
