package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/yungbote/recycleright-backend/internal/app"
	"github.com/yungbote/recycleright-backend/internal/classify"
	"github.com/yungbote/recycleright-backend/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		if errors.Is(err, classify.ErrModelUnavailable) {
			fmt.Printf("primary model unavailable, refusing to start: %v\n", err)
		} else {
			fmt.Printf("failed to initialize app: %v\n", err)
		}
		os.Exit(1)
	}
	a.Start()
	err = a.Run(ctx)
	if err != nil {
		a.Log.Error("server exited", "error", err)
	} else {
		a.Log.Info("server stopped")
	}
	a.Close()
	if err != nil {
		os.Exit(1)
	}
}
