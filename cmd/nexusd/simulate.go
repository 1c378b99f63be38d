package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nexusdex/internal/amm"
	"nexusdex/internal/simulate"
)

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, cleanup, err := openPool(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	steps := make([]simulate.Step, 0, len(args))
	for _, arg := range args {
		step, err := parseStep(p, arg)
		if err != nil {
			return err
		}
		steps = append(steps, step)
	}

	res, err := simulate.Run(p.Manager.Reserves(), p.Manager.Fee(), steps)
	if err != nil {
		return err
	}

	decA, decB := p.TokenA.Decimals(), p.TokenB.Decimals()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSELL\tRECEIVE\tIMPACT\tRESERVE A\tRESERVE B")
	for i, sr := range res.Steps {
		in := p.Manager.Token(sr.Side)
		sell := fmt.Sprintf("%s %s", amm.FormatUnits(sr.AmountIn, in.Decimals()), in.Symbol())
		if sr.Err != nil {
			fmt.Fprintf(w, "%d\t%s\trejected: %v\t\t\t\n", i+1, sell, sr.Err)
			continue
		}
		out := p.Manager.Token(sr.Side.Other())
		fmt.Fprintf(w, "%d\t%s\t%s %s\t%s\t%s\t%s\n", i+1, sell,
			amm.FormatUnits(sr.AmountOut, out.Decimals()), out.Symbol(),
			sr.PriceImpact.StringFixed(6),
			amm.FormatUnits(sr.Reserves.A, decA), amm.FormatUnits(sr.Reserves.B, decB))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nk growth %s, %d of %d steps rejected\n",
		res.KGrowth.StringFixed(12), res.Failed, len(res.Steps))
	return nil
}
