package main

import (
	"pulsedesk.ai/cli/internal/interfaces/cli"
	"pulsedesk.ai/cli/internal/interfaces/di"
)

func main() {
	container := di.NewContainer()
	cli.Execute(container)
}
