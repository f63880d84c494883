package main

import "tagroute/internal/cli"

func main() {
	cli.Execute()
}
