package main

import "rate-ledger/internal/cli"

func main() {
	cli.Execute()
}
