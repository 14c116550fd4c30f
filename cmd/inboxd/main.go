package main

import (
	"github.com/devatlas/devatlas/internal/cli"
	"github.com/devatlas/devatlas/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger()
}

func main() {
	cli.Execute()
}
