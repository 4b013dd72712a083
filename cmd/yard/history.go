package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cfoust/yard/pkg/config"
	"github.com/cfoust/yard/pkg/history"
)

func historyCommand(configs []string, limit int) error {
	config, err := config.Process(configs)
	if err != nil {
		return err
	}

	store, err := history.Open(config.History)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("history is disabled, set history.driver")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	for _, result := range results {
		fmt.Printf(
			"%s %s\n",
			result.Ended.Format(time.RFC3339),
			result,
		)
	}
	return nil
}
