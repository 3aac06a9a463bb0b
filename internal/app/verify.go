package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tondonate/internal/verify"
)

// VerifyOnce runs a single verification from the CLI and prints the verdict.
func (a *App) VerifyOnce(ctx context.Context, opts VerifyOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	amount := decimal.NewFromFloat(a.Config.Ton.MinDonationTon)
	if opts.AmountTon != "" {
		amount, err = decimal.NewFromString(opts.AmountTon)
		if err != nil || amount.Sign() <= 0 {
			return errors.New("--amount must be a positive TON amount")
		}
	}

	claim := verify.Claim{
		Ref:         opts.ClaimRef,
		MinAmount:   amount,
		FromAddress: opts.From,
		Comment:     opts.Comment,
	}
	if opts.Since != nil {
		claim.Since = *opts.Since
	}

	verifier := a.newVerifier(store)
	result, err := verifier.Verify(ctx, claim)
	if err != nil {
		return err
	}

	if result.Verified {
		fmt.Printf("verified via %s\n", result.Via)
		if result.TxHash != "" {
			fmt.Printf("tx hash: %s\n", result.TxHash)
		}
		if result.Source != "" {
			fmt.Printf("from: %s\n", result.Source)
		}
		fmt.Printf("amount: %d nanoton\n", result.Amount)
	} else {
		fmt.Printf("not verified yet (answered by %s); indexer propagation may lag, retry shortly\n", result.Via)
	}
	return nil
}

// ShowRate prints the current fiat/TON rate.
func (a *App) ShowRate(ctx context.Context) error {
	rate, err := a.newOracle().Rate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("1 TON = %s %s\n", rate.String(), a.Config.Price.Currency)
	return nil
}
