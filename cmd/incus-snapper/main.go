package main

import (
	"os"

	"incus-snapper/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
