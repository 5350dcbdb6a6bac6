package main

import "github.com/courtcheck/courtcheck/internal/cli"

func main() {
	cli.Execute()
}
