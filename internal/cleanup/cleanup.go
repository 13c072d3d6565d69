package cleanup

import (
	"context"

	log "github.com/sirupsen/logrus"

	"iq-sync/internal/iq"
	"iq-sync/internal/observability"
	"iq-sync/internal/organization"
)

// ScanServer is the slice of the IQ Server client the cleaner needs.
type ScanServer interface {
	ListApplications(ctx context.Context, orgID string) ([]iq.Application, error)
	DeleteApplication(ctx context.Context, appID string) error
}

// Result tallies the outcome of one organization, or the field-wise sum over
// all of them.
type Result struct {
	Deleted int
	Errors  int
}

func (r *Result) Add(other Result) {
	r.Deleted += other.Deleted
	r.Errors += other.Errors
}

type Cleaner struct {
	iq     ScanServer
	dryRun bool
	logger *log.Entry
}

func NewCleaner(iq ScanServer, dryRun bool) *Cleaner {
	return &Cleaner{
		iq:     iq,
		dryRun: dryRun,
		logger: log.WithField("package", "cleanup"),
	}
}

// Clean deletes every application under one organization. Failures are
// isolated per application.
func (c *Cleaner) Clean(ctx context.Context, org organization.Organization) Result {
	l := c.logger.WithFields(log.Fields{
		"organization": org.DisplayName,
		"id":           org.ID,
	})
	l.Info("cleaning organization")

	var result Result

	apps, err := c.iq.ListApplications(ctx, org.ID)
	if err != nil {
		l.WithError(err).Warn("listing applications")
		result.Errors++
		observability.Errors.WithLabelValues(org.DisplayName).Inc()
		return result
	}

	if len(apps) == 0 {
		l.Warn("no applications found")
		return result
	}

	for _, app := range apps {
		ll := l.WithField("application", app.Name)

		if c.dryRun {
			ll.Info("dry run: skipping application delete")
			continue
		}

		if err := c.iq.DeleteApplication(ctx, app.ID); err != nil {
			ll.WithError(err).Error("deleting application")
			result.Errors++
			observability.Errors.WithLabelValues(org.DisplayName).Inc()
			continue
		}
		ll.Info("application deleted")
		result.Deleted++
		observability.ApplicationsDeleted.WithLabelValues(org.DisplayName).Inc()
	}

	l.WithFields(log.Fields{
		"deleted": result.Deleted,
		"errors":  result.Errors,
	}).Info("organization cleaned")
	return result
}

// Run processes the organizations sequentially and sums their results.
func (c *Cleaner) Run(ctx context.Context, orgs []organization.Organization) Result {
	var total Result
	for i, org := range orgs {
		c.logger.Infof("[%d/%d] processing organization: %s", i+1, len(orgs), org.DisplayName)
		total.Add(c.Clean(ctx, org))
	}

	c.logger.WithFields(log.Fields{
		"deleted": total.Deleted,
		"errors":  total.Errors,
	}).Info("overall summary")
	if total.Errors > 0 {
		c.logger.Warnf("%d errors occurred, check logs for details", total.Errors)
	}
	return total
}
