package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/api"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/config"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel/store"
)

func TestBalanceAuditor_RunNowFlagsDrift(t *testing.T) {
	// GIVEN: One clean record and one whose stored balance was corrupted
	// WHEN: The auditor runs
	// THEN: Exactly the corrupted record is counted

	mem := store.NewMemory()
	eng := engine.New(mem, config.Default(), zap.NewNop())
	ctx := context.Background()

	_, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 872 DVH",
		GoingDO:     "DO-1",
		Destination: "KIGALI",
		TripDate:    time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard:  "DAR YARD",
		Actor:       "dispatcher-jane",
	})
	require.NoError(t, err)

	dirty, err := eng.CreateJourneyRecord(ctx, engine.CreateRecordInput{
		TruckNumber: "T 455 DSV",
		GoingDO:     "DO-2",
		Destination: "MWANZA",
		TripDate:    time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		OriginYard:  "TANGA YARD",
		Actor:       "dispatcher-jane",
	})
	require.NoError(t, err)

	d, err := mem.GetRecord(ctx, dirty.Record.ID())
	require.NoError(t, err)
	d.Balance = d.Balance.Add(fuel.NewLitersFromInt(9))
	_, err = mem.UpdateRecord(ctx, d)
	require.NoError(t, err)

	auditor := api.NewBalanceAuditor(eng, zap.NewNop())
	auditor.RunNow()

	lastRun, mismatches := auditor.LastAudit()
	assert.False(t, lastRun.IsZero())
	assert.Equal(t, 1, mismatches)
}

func TestBalanceAuditor_StartStop(t *testing.T) {
	eng := engine.New(store.NewMemory(), config.Default(), zap.NewNop())

	auditor := api.NewBalanceAuditor(eng, zap.NewNop())
	auditor.CheckInterval = time.Hour
	auditor.Start()
	auditor.Stop()

	// The run-on-start audit completed before Stop returned.
	lastRun, mismatches := auditor.LastAudit()
	assert.False(t, lastRun.IsZero())
	assert.Equal(t, 0, mismatches)
}

func TestBalanceAuditor_DisabledDoesNotStart(t *testing.T) {
	eng := engine.New(store.NewMemory(), config.Default(), zap.NewNop())

	auditor := api.NewBalanceAuditor(eng, zap.NewNop())
	auditor.Enabled = false
	auditor.Start()
	auditor.Stop() // must be safe without a running loop

	lastRun, _ := auditor.LastAudit()
	assert.True(t, lastRun.IsZero())
}
