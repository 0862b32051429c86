// Command cli is the heap-dump-analysis command-line tool: analyze a dump
// locally, query an already-opened one over grpc, or serve the
// HeapQueryService.
package main

import (
	"github.com/heapdump-analysis/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}
