package main

import "github.com/getcharzp/go-backdrop/cli"

func main() {
	cli.Execute()
}
