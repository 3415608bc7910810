package main

import (
	"errors"
	"fmt"
	"os"

	"api-retriever/internal/app"
	"api-retriever/internal/logging"
)

func main() {
	runner := app.NewAppRunner()

	err := runner.Run(os.Args[1:])
	if err != nil {
		logging.Logf(logging.Error, "%v", err)
		if errors.Is(err, app.ErrUsage) || errors.Is(err, app.ErrConfigNotFound) || errors.Is(err, app.ErrMissingArgs) {
			fmt.Fprintln(os.Stderr, "")
			runner.Usage(os.Stderr)
		}
		os.Exit(1)
	}

	logging.Logf(logging.Info, "Retrieval completed.")
}
