package main

import "github.com/forPelevin/sopgen/internal/cli"

func main() {
	cli.Main()
}
