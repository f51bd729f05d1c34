package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsched/internal/app"
	"opsched/pkg/systemd"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	if err := systemd.NotifyReady(); err != nil {
		fmt.Println("systemd notify failed:", err)
	}
	go runWatchdog(ctx)

	<-ctx.Done()
	_ = systemd.NotifyStopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}

func runWatchdog(ctx context.Context) {
	if err := systemd.RunWatchdog(ctx); err != nil && ctx.Err() == nil {
		fmt.Println("systemd watchdog failed:", err)
	}
}
