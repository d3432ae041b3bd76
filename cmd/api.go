package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// remoteJobs reads and cancels jobs through a running 'tmx serve'. It
// satisfies [ui.Jobs] and [ui.History].
type remoteJobs struct {
	ctx context.Context
	api *services.APIService
}

func (j remoteJobs) Status(id string) (*models.MigrationJob, error) {
	view, err := j.api.JobStatus(j.ctx, id)
	if err != nil {
		return nil, err
	}
	return models.JobFromView(*view), nil
}

func (j remoteJobs) Cancel(id string) error {
	return j.api.CancelJob(j.ctx, id)
}

func (j remoteJobs) Recent(limit int) ([]tasks.JobSummary, error) {
	return j.list(url.Values{"limit": {strconv.Itoa(limit)}})
}

func (j remoteJobs) ForDestination(tenantID string, limit int) ([]tasks.JobSummary, error) {
	return j.list(url.Values{"limit": {strconv.Itoa(limit)}, "destination": {tenantID}})
}

func (j remoteJobs) list(query url.Values) ([]tasks.JobSummary, error) {
	var summaries []tasks.JobSummary
	if err := j.api.GetJSON(j.ctx, "/api/jobs?"+query.Encode(), &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (j remoteJobs) Errors(id string, limit int) ([]models.RecordError, error) {
	var entries []models.RecordError
	path := fmt.Sprintf("/api/jobs/%s/errors?limit=%d", url.PathEscape(id), limit)
	if err := j.api.GetJSON(j.ctx, path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// remote returns a client for the --server flag, or nil when it is unset.
func (r *Runner) remote(ctx context.Context, cmd *cli.Command) *remoteJobs {
	server := cmd.String("server")
	if server == "" {
		return nil
	}
	return &remoteJobs{ctx: ctx, api: services.NewAPIService(server, r.httpClient)}
}

// APIGet makes a direct GET request to a running API server.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	server := cmd.String("server")
	if server == "" {
		server = "http://" + r.config.Server.Addr()
	}

	r.logger.Info("GET request", "server", server, "path", path)

	resp, err := services.NewAPIService(server, r.httpClient).Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, !cmd.Bool("json"))
	}

	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}
