package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"nexusdex/internal/amm"
	"nexusdex/internal/bootstrap"
	"nexusdex/internal/config"
	"nexusdex/internal/persistence"
	"nexusdex/internal/simulate"
)

// openPool brings up the pool from the persisted reserves, or from the
// genesis liquidity when nothing was persisted. Nothing is journaled.
func openPool(ctx context.Context, cfg *config.Config) (*bootstrap.Pool, func(), error) {
	var store *persistence.Store
	if cfg.Persistence.Enabled {
		var err error
		store, err = persistence.NewStore(cfg.Persistence.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
	}

	p, err := bootstrap.Run(ctx, cfg, bootstrap.Options{Store: store, Seed: true})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		p.Manager.Close()
		if store != nil {
			store.Close()
		}
	}
	return p, cleanup, nil
}

// parseStep accepts "SIDE:AMOUNT" where SIDE is a side letter or an asset symbol.
func parseStep(p *bootstrap.Pool, arg string) (simulate.Step, error) {
	if asset, amount, ok := strings.Cut(arg, ":"); ok {
		if tok, found := p.Registry.BySymbol(strings.TrimSpace(asset)); found {
			side, err := p.Manager.SideOf(tok.ID())
			if err != nil {
				return simulate.Step{}, err
			}
			arg = side.String() + ":" + amount
		}
	}
	return simulate.ParseStep(arg, p.TokenA.Decimals(), p.TokenB.Decimals())
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	maxImpactStr, _ := cmd.Flags().GetString("max-impact")
	maxImpact, err := decimal.NewFromString(maxImpactStr)
	if err != nil {
		return fmt.Errorf("--max-impact: %w", err)
	}

	ctx := cmd.Context()
	p, cleanup, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	step, err := parseStep(p, args[0]+":"+args[1])
	if err != nil {
		return err
	}

	tokIn, tokOut := p.Manager.Token(step.Side), p.Manager.Token(step.Side.Other())
	reserves := p.Manager.Reserves()
	reserveIn, reserveOut := reserves.InOut(step.Side)

	amountOut, err := p.Manager.Quote(step.Side, step.AmountIn)
	if err != nil {
		return err
	}
	maxIn, err := simulate.MaxInputForImpact(reserves, step.Side, p.Manager.Fee(), maxImpact)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool          %s\n", p.Manager.Address().Hex())
	fmt.Fprintf(out, "reserves      %s %s / %s %s\n",
		amm.FormatUnits(reserves.A, p.TokenA.Decimals()), p.TokenA.Symbol(),
		amm.FormatUnits(reserves.B, p.TokenB.Decimals()), p.TokenB.Symbol())
	fmt.Fprintf(out, "sell          %s %s\n", amm.FormatUnits(step.AmountIn, tokIn.Decimals()), tokIn.Symbol())
	fmt.Fprintf(out, "receive       %s %s\n", amm.FormatUnits(amountOut, tokOut.Decimals()), tokOut.Symbol())
	fmt.Fprintf(out, "spot price    %s\n", amm.SpotPrice(reserveIn, reserveOut).String())
	fmt.Fprintf(out, "after fee     %s\n", amm.EffectiveRate(reserveIn, reserveOut, p.Manager.Fee()).String())
	fmt.Fprintf(out, "price impact  %s\n", amm.PriceImpact(step.AmountIn, amountOut, reserveIn, reserveOut).StringFixed(6))
	fmt.Fprintf(out, "max input at %s impact  %s %s\n", maxImpact.String(), amm.FormatUnits(maxIn, tokIn.Decimals()), tokIn.Symbol())
	return nil
}
