package main

import "tondonate/internal/cli"

func main() {
	cli.Execute()
}
