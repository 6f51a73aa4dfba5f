package main

import (
	"os"

	"github.com/wesleyorama2/fusillade/internal/cli"
	"github.com/wesleyorama2/fusillade/internal/pipeline"
)

// Main is the entry point for the application
// It's exported to make it testable
func Main() int {
	return pipeline.ExitCode(cli.Execute())
}

func main() {
	os.Exit(Main())
}
