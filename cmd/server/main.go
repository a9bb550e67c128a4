package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/Dawstr8/polish-peaks/internal/handlers"
)

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(handlers.Version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
