// Package main is the entry point for the enterprise document Q&A tool.
//
//	docqa provision ./documents
//	docqa query "How many vacation days do new employees get?"
//	docqa batch --file questions.txt
//	docqa teardown --purge
//	docqa serve --server.addr=:8080
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/asakusa/enterprise-rag/internal/docqa"
)

func main() {
	docqa.NewApp().Run()
}
