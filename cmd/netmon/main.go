package main

import "strata-netmon/internal/cli"

func main() {
	cli.Execute()
}
