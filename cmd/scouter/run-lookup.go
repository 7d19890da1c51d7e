package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli"

	"github.com/ffscout/scouter"
	"github.com/ffscout/scouter/internal/server"
)

func runLookup(c *cli.Context) error {
	m := getMetadata(c)

	if c.NArg() == 0 {
		return fmt.Errorf("at least one player id is required")
	}
	ids := make([]scouter.ID, 0, c.NArg())
	for _, arg := range c.Args() {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid player id %q", arg)
		}
		ids = append(ids, scouter.ID(id))
	}

	store, closeStore, err := openStore(m.config.Store, nil, m.log)
	if err != nil {
		return err
	}
	defer closeStore()

	scheduler := newScheduler(m, store, scouter.StaticKey(m.config.APIKey), nil, nil)
	defer scheduler.Close()

	ctx := context.Background()
	if timeout := c.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results, err := scheduler.GetMany(ctx, ids)
	views := make([]server.EstimateView, 0, len(ids))
	for _, id := range ids {
		if result, ok := results[id]; ok {
			views = append(views, server.ViewOf(result))
		}
	}
	printJSON(m.w, views)
	return err
}
