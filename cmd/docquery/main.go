// Package main is the entry point for the document query service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docquery/internal/docquery"
)

func main() {
	docquery.NewApp().Run()
}
