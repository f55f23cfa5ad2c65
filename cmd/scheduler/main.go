package main

import (
	"context"

	"chronosched/internal/app"
	"chronosched/internal/tasklib"
	"chronosched/internal/tasklib/workerproc"
)

func main() {
	application, err := app.New()
	if err != nil {
		panic(err)
	}

	if workerproc.MaybeRunWorker(context.Background(), application.Registry, tasklib.ParamScope{}) {
		return
	}

	if err := application.Run(); err != nil {
		panic(err)
	}
}
