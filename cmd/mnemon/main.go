package main

import "github.com/mnemonlabs/mnemon/cmd/mnemon/cli"

func main() {
	cli.Execute()
}
