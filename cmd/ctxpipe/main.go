package main

import "ctxpipe/internal/cli"

func main() {
	cli.Execute()
}
