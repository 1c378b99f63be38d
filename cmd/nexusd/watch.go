package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nexusdex/pkg/client"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := client.NewStreamClient(url)
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	go stream.StartPingLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- stream.ReadMessages(ctx) }()

	for msg := range stream.Messages() {
		switch {
		case msg.State != nil:
			s := msg.State
			log.Info().
				Str("pool", s.Address).
				Str("reserve_a", s.AssetA.ReserveFormatted+" "+s.AssetA.Symbol).
				Str("reserve_b", s.AssetB.ReserveFormatted+" "+s.AssetB.Symbol).
				Str("price_a", s.PriceA).
				Uint64("sequence", s.Sequence).
				Msg("Pool state")
		case msg.Update != nil:
			u := msg.Update
			log.Info().
				Str("kind", u.Kind).
				Uint64("sequence", u.Sequence).
				Str("reserve_a", u.ReserveA).
				Str("reserve_b", u.ReserveB).
				Msg("Reserves updated")
		}
	}

	if err := <-errCh; err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
