package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/timeslot"
)

const retentionJobName = "reservation_retention"

// RetentionCutoff returns the first calendar day that is kept when reservations older than
// retentionDays are pruned, as seen from now in loc.
func RetentionCutoff(now time.Time, loc *time.Location, retentionDays int) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return timeslot.TruncateDay(now.In(loc)).AddDate(0, 0, -retentionDays)
}

// PruneReservations deletes every reservation dated before cutoff. Participant rows go with
// them through the foreign key cascade.
func PruneReservations(ctx context.Context, database *db.DB, cutoff time.Time) (int64, error) {
	var deleted int64
	err := database.RunInTx(ctx, func(txdb *db.DB) error {
		n, err := txdb.Queries.DeleteReservationsBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune reservations before %s: %w", timeslot.FormatDay(cutoff), err)
	}
	return deleted, nil
}

// RegisterRetentionJob schedules the periodic prune of past reservations.
func RegisterRetentionJob(svc *Service, database *db.DB, cronExpr string, retentionDays int, loc *time.Location) error {
	if database == nil {
		return fmt.Errorf("retention job requires database")
	}
	if retentionDays < 1 {
		return fmt.Errorf("retention job requires a positive retention, got %d days", retentionDays)
	}

	jobLogger := log.With().
		Str("component", "reservation_retention_job").
		Str("job_name", retentionJobName).
		Int("retention_days", retentionDays).
		Logger()

	_, err := svc.AddJob(retentionJobName, cronExpr, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		cutoff := RetentionCutoff(time.Now(), loc, retentionDays)
		deleted, err := PruneReservations(ctx, database, cutoff)
		if err != nil {
			return err
		}
		jobLogger.Info().
			Str("cutoff", timeslot.FormatDay(cutoff)).
			Int64("deleted", deleted).
			Msg("Pruned past reservations")
		return nil
	}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("add reservation retention job: %w", err)
	}

	jobLogger.Info().Msg("Reservation retention job registered")
	return nil
}
