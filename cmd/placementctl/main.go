package main

import (
	"context"
	"flag"
	"os"

	"placementd/internal/app"
	"placementd/internal/config"
	"placementd/internal/observability"
	"placementd/internal/repository/memory"
	"placementd/internal/snapshot"
)

// placementctl loads a snapshot directory, re-validates every engine
// invariant, and reports what it found. With -rewrite it writes the
// normalized records back out.
func main() {
	rewrite := flag.Bool("rewrite", false, "write the normalized snapshot back to the data directory")
	flag.Parse()

	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	limits := app.Limits{
		MaxActiveApplications:          cfg.MaxActiveApplications,
		MaxSlotsPerOpportunity:         cfg.MaxSlotsPerOpportunity,
		MaxActiveOpportunitiesPerOwner: cfg.MaxActiveOpportunitiesPerOwner,
	}

	snap, err := snapshot.LoadDir(cfg.DataDir, limits)
	if err != nil {
		logger.WithError(err).Fatal("snapshot rejected")
	}

	ctx := context.Background()
	directory := memory.NewDirectory()
	opportunityRepo := memory.NewOpportunityRepository(nil)
	applicationRepo := memory.NewApplicationRepository(nil)
	if err := snapshot.Restore(ctx, snap, directory, opportunityRepo, applicationRepo); err != nil {
		logger.WithError(err).Fatal("snapshot restore failed")
	}

	audit := observability.NewRecorder(logger)
	applications := app.NewApplicationService(applicationRepo, opportunityRepo, directory, audit, nil, limits)

	pending, err := applications.ListPendingWithdrawals(ctx)
	if err != nil {
		logger.WithError(err).Fatal("listing pending withdrawals failed")
	}

	logger.WithField("data_dir", cfg.DataDir).
		WithField("applicants", len(snap.Actors.Applicants)).
		WithField("owners", len(snap.Actors.Owners)).
		WithField("approvers", len(snap.Actors.Approvers)).
		WithField("opportunities", len(snap.Opportunities)).
		WithField("applications", len(snap.Applications)).
		WithField("pending_withdrawals", len(pending)).
		Info("snapshot valid")

	if *rewrite {
		if err := snapshot.SaveDir(cfg.DataDir, snap); err != nil {
			logger.WithError(err).Fatal("snapshot rewrite failed")
		}
		logger.WithField("data_dir", cfg.DataDir).Info("snapshot rewritten")
	}

	os.Exit(0)
}
