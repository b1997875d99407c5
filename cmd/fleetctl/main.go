package main

import "fleetdeploy/internal/cli"

func main() {
	cli.Execute()
}
