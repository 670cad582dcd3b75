package main

import "github.com/keerthanasaravanan18/college/internal/cli"

func main() {
	cli.Execute()
}
