package main

import "alphafeed/internal/cli"

func main() {
	cli.Execute()
}
