package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
	"golang.org/x/sync/errgroup"
)

// throughput is the expected import rate per category in records per minute.
var throughput = map[models.Category]int{
	models.CategoryContacts:      600,
	models.CategoryTags:          1200,
	models.CategoryCustomFields:  1200,
	models.CategoryPipelines:     600,
	models.CategoryOpportunities: 400,
	models.CategoryCalendars:     600,
	models.CategoryAppointments:  300,
	models.CategoryForms:         200,
	models.CategorySurveys:       200,
	models.CategoryWorkflows:     60,
	models.CategoryCampaigns:     60,
	models.CategoryAIPrompts:     300,
	models.CategoryTemplates:     300,
	models.CategoryMedia:         60,
}

// EstimateDuration returns the expected transfer time in whole minutes.
func EstimateDuration(counts map[models.Category]int) int {
	var minutes float64
	for c, n := range counts {
		if n <= 0 {
			continue
		}
		rate := throughput[c]
		if rate <= 0 {
			rate = 60
		}
		minutes += float64(n) / float64(rate)
	}
	whole := int(minutes)
	if float64(whole) < minutes {
		whole++
	}
	return whole
}

// Analyzer counts the records of a source tenant.
type Analyzer struct {
	connector services.Connector
	settings  Settings
	logger    *log.Logger
}

func NewAnalyzer(connector services.Connector, settings Settings, logger *log.Logger) *Analyzer {
	return &Analyzer{connector: connector, settings: settings.normalize(), logger: logger}
}

// Analyze counts every catalog category. Per-category failures become warnings
// with a zero count; an account-level failure is returned as an error.
//
// When previous holds the counts of an earlier analysis, changed counts are
// reported as warnings too.
func (a *Analyzer) Analyze(ctx context.Context, creds models.AccountCredentials, previous map[models.Category]int) (*models.AnalysisResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	tenant, err := a.connector.Connect(creds)
	if err != nil {
		return nil, err
	}
	return a.analyze(ctx, tenant, creds.TenantID, previous)
}

func (a *Analyzer) analyze(ctx context.Context, tenant services.Tenant, tenantID string, previous map[models.Category]int) (*models.AnalysisResult, error) {
	logger := shared.WithLogger(a.logger, "tenant", tenantID)
	catalog := models.Catalog()

	var (
		mu       sync.Mutex
		counts   = make(map[models.Category]int, len(catalog))
		warnings = make(map[models.Category]string)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.settings.AnalyzeConcurrency)

	for _, c := range catalog {
		g.Go(func() error {
			var n int
			err := withRetry(gctx, a.settings, logger, "count "+string(c), func() error {
				var err error
				n, err = tenant.Count(gctx, c)
				return err
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				counts[c] = n
			case errors.Is(err, shared.ErrForbidden):
				counts[c] = 0
				warnings[c] = fmt.Sprintf("no permission to read %s", c.Label())
			case Classify(err) == FaultAccount, ctx.Err() != nil:
				return fmt.Errorf("count %s: %w", c, err)
			default:
				logger.Warn("count failed", "category", c, "err", err)
				counts[c] = 0
				warnings[c] = fmt.Sprintf("could not count %s: %v", c.Label(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.AnalysisResult{
		DataCounts:        counts,
		EstimatedDuration: EstimateDuration(counts),
		Warnings:          []string{},
	}
	for _, c := range catalog {
		if w, ok := warnings[c]; ok {
			result.Warnings = append(result.Warnings, w)
		}
		if old, ok := previous[c]; ok && old != counts[c] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s count changed since last analysis: %d -> %d", c.Label(), old, counts[c]))
		}
	}

	logger.Info("analysis complete", "records", result.TotalRecords(), "minutes", result.EstimatedDuration)
	return result, nil
}
