package sync

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"iq-sync/internal/devops"
	"iq-sync/internal/iq"
	"iq-sync/internal/observability"
	"iq-sync/internal/organization"
)

const ownerLabel = "Owner"

// SourceControl is the slice of the Azure DevOps client the reconciler needs.
type SourceControl interface {
	ListProjects(ctx context.Context) ([]devops.Project, error)
	PrimaryRepositoryURL(ctx context.Context, projectID string) (string, error)
}

// ScanServer is the slice of the IQ Server client the reconciler needs.
type ScanServer interface {
	ListApplications(ctx context.Context, orgID string) ([]iq.Application, error)
	CreateApplication(ctx context.Context, name, repoURL, branch, orgID string) (string, error)
	ScanApplication(ctx context.Context, appID, branch, stageID string) error
}

// Result tallies the outcome of one organization, or the field-wise sum over
// all of them.
type Result struct {
	Created int
	Scanned int
	Errors  int
}

func (r *Result) Add(other Result) {
	r.Created += other.Created
	r.Scanned += other.Scanned
	r.Errors += other.Errors
}

type Reconciler struct {
	devops  SourceControl
	iq      ScanServer
	branch  string
	stageID string
	logger  *log.Entry
}

func NewReconciler(devops SourceControl, iq ScanServer, branch, stageID string) *Reconciler {
	return &Reconciler{
		devops:  devops,
		iq:      iq,
		branch:  branch,
		stageID: stageID,
		logger:  log.WithField("package", "sync"),
	}
}

// Marker returns the description substring that binds a project to an
// organization. Matching is case-sensitive and requires this exact format.
func Marker(displayName string) string {
	return ownerLabel + ": " + displayName
}

func matchProjects(projects []devops.Project, displayName string) []devops.Project {
	marker := Marker(displayName)
	var matched []devops.Project
	for _, p := range projects {
		if strings.Contains(p.Description, marker) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Sync reconciles one organization: matched projects get an application
// (created when missing) and a scan. Failures are isolated per project.
func (r *Reconciler) Sync(ctx context.Context, org organization.Organization) Result {
	l := r.logger.WithFields(log.Fields{
		"organization": org.DisplayName,
		"id":           org.ID,
	})
	l.Info("syncing organization")

	var result Result

	projects, err := r.devops.ListProjects(ctx)
	if err != nil {
		l.WithError(err).Warn("listing projects")
		r.countError(&result, org)
		return result
	}

	matched := matchProjects(projects, org.DisplayName)
	if len(matched) == 0 {
		l.Warn("no matching projects found")
		return result
	}

	apps, err := r.iq.ListApplications(ctx, org.ID)
	if err != nil {
		l.WithError(err).Warn("listing applications")
		r.countError(&result, org)
		return result
	}
	existing := make(map[string]string, len(apps))
	for _, app := range apps {
		existing[app.Name] = app.ID
	}

	for _, project := range matched {
		ll := l.WithField("project", project.Name)
		ll.Info("processing project")

		repoURL, err := r.devops.PrimaryRepositoryURL(ctx, project.ID)
		if err != nil {
			ll.WithError(err).Warn("resolving repository url")
			r.countError(&result, org)
			continue
		}
		if repoURL == "" {
			ll.Warn("no repository found for project")
			r.countError(&result, org)
			continue
		}

		appID, ok := existing[project.Name]
		if !ok {
			ll.Info("creating application")
			appID, err = r.iq.CreateApplication(ctx, project.Name, repoURL, r.branch, org.ID)
			if err != nil {
				ll.WithError(err).Error("creating application")
				r.countError(&result, org)
				continue
			}
			result.Created++
			observability.ApplicationsCreated.WithLabelValues(org.DisplayName).Inc()
		}

		ll.Info("triggering scan")
		if err := r.iq.ScanApplication(ctx, appID, r.branch, r.stageID); err != nil {
			ll.WithError(err).Error("triggering scan")
			r.countError(&result, org)
			continue
		}
		result.Scanned++
		observability.ScansTriggered.WithLabelValues(org.DisplayName).Inc()
	}

	l.WithFields(log.Fields{
		"created": result.Created,
		"scanned": result.Scanned,
		"errors":  result.Errors,
	}).Info("organization synced")
	return result
}

// Run processes the organizations sequentially and sums their results.
func (r *Reconciler) Run(ctx context.Context, orgs []organization.Organization) Result {
	var total Result
	for i, org := range orgs {
		r.logger.Infof("[%d/%d] processing organization: %s", i+1, len(orgs), org.DisplayName)
		total.Add(r.Sync(ctx, org))
	}

	r.logger.WithFields(log.Fields{
		"created": total.Created,
		"scanned": total.Scanned,
		"errors":  total.Errors,
	}).Info("overall summary")
	if total.Errors > 0 {
		r.logger.Warnf("%d errors occurred, check logs for details", total.Errors)
	}
	return total
}

func (r *Reconciler) countError(result *Result, org organization.Organization) {
	result.Errors++
	observability.Errors.WithLabelValues(org.DisplayName).Inc()
}
