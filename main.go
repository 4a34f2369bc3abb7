package main

import "github.com/insightdelivered/statement-extractor/internal/cli"

func main() {
	cli.Execute()
}
