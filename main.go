package main

import (
	"context"
	"os"

	"github.com/dayrun-org/dayrun/internal/build"
	"github.com/dayrun-org/dayrun/internal/cmd"
)

var version = "dev"

func main() {
	build.Version = version
	os.Exit(cmd.Execute(context.Background()))
}
