package main

import "github.com/vietddude/boardcheck/internal/cli"

func main() {
	cli.Execute()
}
