package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/ledger"
)

const (
	ledgerAuditJobName = "ledger_audit"
	ledgerAuditTimeout = 10 * time.Minute
	auditDateLayout    = "2006-01-02"
)

// Auditor is the part of ledger.Auditor the job drives.
type Auditor interface {
	Audit(ctx context.Context, from, to string) ([]ledger.Drift, error)
	Repair(ctx context.Context, reservationIDs []int64) (int, error)
}

// AuditReport summarises one audit run.
type AuditReport struct {
	From     string
	To       string
	Drifted  []int64
	Repaired int
}

// LedgerAuditJob compares the ledger of the last lookbackDays with the
// reservations it derives from and, when repair is set, rewrites drifted
// reservations.
type LedgerAuditJob struct {
	auditor      Auditor
	lookbackDays int
	repair       bool
	now          func() time.Time
}

func NewLedgerAuditJob(auditor Auditor, lookbackDays int, repair bool) (*LedgerAuditJob, error) {
	if auditor == nil {
		return nil, errors.New("ledger audit job requires an auditor")
	}
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	return &LedgerAuditJob{auditor: auditor, lookbackDays: lookbackDays, repair: repair, now: time.Now}, nil
}

// Run audits the window ending today.
func (j *LedgerAuditJob) Run(ctx context.Context) (AuditReport, error) {
	today := j.now()
	report := AuditReport{
		From: today.AddDate(0, 0, -(j.lookbackDays - 1)).Format(auditDateLayout),
		To:   today.Format(auditDateLayout),
	}
	logger := log.Ctx(ctx).With().Str("component", "ledger_audit").Str("from", report.From).Str("to", report.To).Logger()

	drift, err := j.auditor.Audit(ctx, report.From, report.To)
	if err != nil {
		return report, err
	}
	for _, d := range drift {
		report.Drifted = append(report.Drifted, d.ReservationID)
		logger.Warn().
			Int64("reservation_id", d.ReservationID).
			Str("date", d.Date).
			Str("expected", d.Expected).
			Int("rows", d.Rows).
			Msg("Ledger drift detected")
	}
	if len(drift) == 0 {
		logger.Info().Msg("Ledger audit clean")
		return report, nil
	}
	if !j.repair {
		logger.Warn().Int("drifted", len(drift)).Msg("Ledger audit found drift; repair disabled")
		return report, nil
	}

	report.Repaired, err = j.auditor.Repair(ctx, report.Drifted)
	if err != nil {
		return report, err
	}
	logger.Info().Int("drifted", len(drift)).Int("repaired", report.Repaired).Msg("Ledger drift repaired")
	return report, nil
}

// RegisterLedgerAudit schedules job on the singleton scheduler.
func RegisterLedgerAudit(cronExpr string, job *LedgerAuditJob) error {
	if job == nil {
		return errors.New("ledger audit job is nil")
	}
	_, err := AddJob(ledgerAuditJobName, cronExpr, ledgerAuditTimeout, func(ctx context.Context) error {
		_, err := job.Run(ctx)
		return err
	})
	return err
}
