package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/archivist/internal/cmd"
)

func main() {
	p, _ := cmd.NewParser()
	if _, err := p.Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
