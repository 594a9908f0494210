package main

import (
	"os"

	"brokereye/app/cli"
)

func main() {
	os.Exit(cli.Execute())
}
