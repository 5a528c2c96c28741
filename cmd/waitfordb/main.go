package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"taskadmin/admin-console/internal/config"
	"taskadmin/admin-console/internal/dbconn"
	"taskadmin/admin-console/internal/observability"
)

func main() {
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	timeout := 60 * time.Second
	if raw := os.Getenv("WAIT_FOR_DB_TIMEOUT_SEC"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			fmt.Fprintf(os.Stderr, "invalid WAIT_FOR_DB_TIMEOUT_SEC: %q\n", raw)
			os.Exit(2)
		}
		timeout = time.Duration(secs) * time.Second
	}

	logger := observability.Discard()
	deadline := time.Now().Add(timeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		m, err := dbconn.Connect(ctx, dbCfg, dbconn.WithLogger(logger))
		if err == nil {
			ok := m.IsConnected(ctx)
			_ = m.Close()
			if ok {
				cancel()
				fmt.Printf("%s ready\n", dbCfg.Driver)
				return
			}
			err = fmt.Errorf("ping failed")
		}
		cancel()
		if time.Now().After(deadline) {
			fmt.Fprintf(os.Stderr, "%s not ready within %s: %v\n", dbCfg.Driver, timeout, err)
			os.Exit(1)
		}
		time.Sleep(2 * time.Second)
	}
}
