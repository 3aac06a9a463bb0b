package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Show prints recent verification records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show records")
	}
	if closeStore != nil {
		defer closeStore()
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	records, err := store.ListRecentVerifications(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no verification records")
		return nil
	}

	for _, rec := range records {
		status := "not verified"
		if rec.Verified {
			status = "verified"
		}
		detail := ""
		if rec.TxAmountNano != nil {
			detail = fmt.Sprintf(" amount=%dn", *rec.TxAmountNano)
		}
		if rec.Reviewer != nil {
			detail += fmt.Sprintf(" reviewer=%s", *rec.Reviewer)
		}
		fmt.Printf("%s  %-14s  via=%-10s  %s%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339), status, rec.Via, rec.ClaimRef, detail)
	}
	return nil
}
