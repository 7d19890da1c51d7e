package main

import (
	"context"

	"github.com/urfave/cli"

	"github.com/ffscout/scouter/internal/server"
)

func runDump(c *cli.Context) error {
	m := getMetadata(c)

	store, closeStore, err := openStore(m.config.Store, nil, m.log)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := store.Dump(context.Background())
	if err != nil {
		return err
	}

	views := make([]server.EstimateView, 0, len(entries))
	for _, entry := range entries {
		view := server.ViewOf(entry.Result)
		view.Expiry = entry.Expiry.UnixMilli()
		views = append(views, view)
	}
	printJSON(m.w, views)
	return nil
}

func runSweep(c *cli.Context) error {
	m := getMetadata(c)

	store, closeStore, err := openStore(m.config.Store, nil, m.log)
	if err != nil {
		return err
	}
	defer closeStore()

	swept, err := store.SweepExpired(context.Background())
	if err != nil {
		return err
	}
	printJSON(m.w, struct {
		Swept int `json:"swept"`
	}{Swept: swept})
	return nil
}
