package main

import (
	"os"

	"github.com/tansive/tenancy/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
