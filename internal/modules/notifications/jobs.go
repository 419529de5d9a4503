package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/rs/zerolog"
)

// NotificationJob runs one notification kind on a schedule
type NotificationJob struct {
	runner *Runner
	now    func() time.Time
	log    zerolog.Logger
	kind   domain.NotificationKind
}

// NewMonthlySummaryJob creates the scheduled monthly summary job
func NewMonthlySummaryJob(runner *Runner, log zerolog.Logger) *NotificationJob {
	return newNotificationJob(runner, domain.KindMonthlySummary, log)
}

// NewRenewalAlertJob creates the scheduled renewal alert job.
// It should run once a day so every reminder day is hit.
func NewRenewalAlertJob(runner *Runner, log zerolog.Logger) *NotificationJob {
	return newNotificationJob(runner, domain.KindRenewalAlert, log)
}

func newNotificationJob(runner *Runner, kind domain.NotificationKind, log zerolog.Logger) *NotificationJob {
	return &NotificationJob{
		runner: runner,
		kind:   kind,
		now:    time.Now,
		log:    log.With().Str("job", string(kind)).Logger(),
	}
}

// Run executes one batch.
// Per-user failures are reported in the batch result, not as an error.
func (j *NotificationJob) Run() error {
	ctx := context.Background()

	var (
		result BatchResult
		err    error
	)
	switch j.kind {
	case domain.KindMonthlySummary:
		result, err = j.runner.RunMonthlySummaries(ctx, j.now())
	case domain.KindRenewalAlert:
		result, err = j.runner.RunRenewalAlerts(ctx, j.now())
	default:
		return fmt.Errorf("unknown notification kind: %s", j.kind)
	}
	if err != nil {
		return err
	}

	if len(result.Failures) > 0 {
		j.log.Warn().
			Str("run_id", result.RunID.String()).
			Int("failed", len(result.Failures)).
			Msg("Some notifications failed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *NotificationJob) Name() string {
	return string(j.kind)
}
