/*
verify.go - Balance audit command

Recomputes every stored record's balance from its allocation and slot
values (soft-deleted rows included) and prints any row whose stored
balance drifted beyond the 0.01 L tolerance. Exit code 1 when drift is
found, so the command can run from cron and page someone.
*/
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute every stored balance and report drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	return cmd
}

func runVerify(dbPath string) error {
	a, err := bootstrap(dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	mismatches, err := a.engine.VerifyBalances(context.Background())
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if len(mismatches) == 0 {
		fmt.Println("OK: all stored balances agree with recomputation")
		return nil
	}

	fmt.Printf("DRIFT: %d record(s) out of balance\n\n", len(mismatches))
	fmt.Printf("%-38s %-14s %-12s %12s %12s %12s\n",
		"RECORD", "GOING DO", "TRUCK", "STORED", "COMPUTED", "DRIFT")
	for _, m := range mismatches {
		fmt.Printf("%-38s %-14s %-12s %12s %12s %12s\n",
			m.RecordID, m.GoingDO, m.Truck, m.Stored, m.Computed, m.Drift)
	}
	return fmt.Errorf("%d record(s) out of balance", len(mismatches))
}
