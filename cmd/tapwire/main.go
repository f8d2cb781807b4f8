package main

import "github.com/ppiankov/tapwire/internal/cli"

func main() {
	cli.Execute()
}
