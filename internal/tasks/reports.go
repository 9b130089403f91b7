package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/module"
	"github.com/yanizio/civitas/internal/notify"
	"github.com/yanizio/civitas/internal/tenant"
)

// ReportDigest mails the bound city's contacts a per-category count of
// reports received since Since.
type ReportDigest struct {
	jobs.Tenancy
	Since time.Time `json:"since"`
	deps  *Deps
}

func reportsTenancy() jobs.Tenancy { return jobs.Tenancy{ModuleKey: module.Reports} }

// NewReportDigest returns a job ready to enqueue.
func NewReportDigest(since time.Time) *ReportDigest {
	return &ReportDigest{Tenancy: reportsTenancy(), Since: since}
}

func (*ReportDigest) Name() string { return NameReportDigest }

func (j *ReportDigest) Handle(ctx context.Context) error {
	r, ok := tenant.FromContext(ctx)
	if !ok {
		return jobs.Fatal(jobs.ErrMissingCity)
	}
	since := j.Since
	if since.IsZero() {
		since = j.deps.Now().Add(-24 * time.Hour)
	}

	counts, err := j.deps.Reports.Summary(ctx, r.City.ID, since)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}
	to, err := j.deps.Reports.DigestContacts(ctx, r.City.ID)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		j.deps.Log.Debug("report digest has no recipients", zap.Uint64("city_id", r.City.ID))
		return nil
	}

	var b strings.Builder
	total := 0
	for _, c := range counts {
		fmt.Fprintf(&b, "%-24s %d\n", c.Category, c.Count)
		total += c.Count
	}
	msg := notify.Message{
		Subject: fmt.Sprintf("%s: %d new reports", r.City.Name, total),
		Text:    fmt.Sprintf("Reports received since %s\n\n%s", since.Format(time.RFC1123), b.String()),
		Tag:     "report-digest",
	}

	return mailEach(ctx, j.deps, r.City.ID, msg, to)
}

// ReportFiled tells the bound city's contacts about one new report.  The
// report content travels in the payload so the job needs no read-back.
type ReportFiled struct {
	jobs.Tenancy
	ReportID uint64 `json:"report_id"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
	deps     *Deps
}

// NewReportFiled returns a job ready to enqueue.  summary is cut to 280
// runes.
func NewReportFiled(id uint64, category, summary string) *ReportFiled {
	if r := []rune(summary); len(r) > 280 {
		summary = string(r[:280]) + "…"
	}
	return &ReportFiled{Tenancy: reportsTenancy(), ReportID: id, Category: category, Summary: summary}
}

func (*ReportFiled) Name() string { return NameReportFiled }

func (j *ReportFiled) Handle(ctx context.Context) error {
	r, ok := tenant.FromContext(ctx)
	if !ok {
		return jobs.Fatal(jobs.ErrMissingCity)
	}
	to, err := j.deps.Reports.DigestContacts(ctx, r.City.ID)
	if err != nil {
		return err
	}

	msg := notify.Message{
		Subject: fmt.Sprintf("%s: new report #%d (%s)", r.City.Name, j.ReportID, j.Category),
		Text:    j.Summary,
		Tag:     "report-filed",
	}
	return mailEach(ctx, j.deps, r.City.ID, msg, to)
}

// mailEach sends msg to every address.  A failed address is logged and
// dropped so a retry cannot mail the others twice; the job fails only
// when no address was reached, which makes the retry safe.
func mailEach(ctx context.Context, deps *Deps, cityID uint64, msg notify.Message, to []string) error {
	var errs []error
	for _, addr := range to {
		msg.To = addr
		if err := deps.Mailer.Send(ctx, msg); err != nil {
			deps.Log.Warn("report mail not delivered",
				zap.Uint64("city_id", cityID), zap.String("to", addr), zap.String("tag", msg.Tag), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(to) > 0 && len(errs) == len(to) {
		return errors.Join(errs...)
	}
	return nil
}
