package tasks

import (
	"context"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/jobs"
)

// PurgeExpiredOTP deletes expired one-time codes.  Codes are issued
// before any city is known, so the job runs without a tenant.
type PurgeExpiredOTP struct {
	deps *Deps
}

// NewPurgeExpiredOTP returns a job ready to enqueue.
func NewPurgeExpiredOTP() *PurgeExpiredOTP { return &PurgeExpiredOTP{} }

func (*PurgeExpiredOTP) Name() string { return NamePurgeExpiredOTP }

func (*PurgeExpiredOTP) Contract() jobs.Contract {
	return jobs.GlobalContract{Reason: "otp codes are issued before a city is resolved"}
}

func (j *PurgeExpiredOTP) Handle(ctx context.Context) error {
	n, err := j.deps.Reports.PurgeExpiredOTP(ctx, j.deps.Now())
	if err != nil {
		return err
	}
	j.deps.Log.Info("expired otp codes purged", zap.Int64("rows", n))
	return nil
}
