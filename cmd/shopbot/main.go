package main

import (
	"os"

	"github.com/patrickjm/shopbot/internal/app"
)

func main() {
	os.Exit(app.Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
