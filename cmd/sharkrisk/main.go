package main

import (
	"os"

	"github.com/guofeng201507/shark-quant-trader-sub001/cmd/sharkrisk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
