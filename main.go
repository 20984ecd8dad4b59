package main

import "github.com/emulab-dev/emuflow/pkg/cli"

func main() {
	cli.Execute()
}
