package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/coursecatalog-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	if runErr != nil {
		a.Log.Error("server exited", "error", runErr)
	}
	a.Close()
	if runErr != nil {
		os.Exit(1)
	}
}
