package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/server"
	"github.com/desertthunder/tmx/internal/shared"
	"github.com/desertthunder/tmx/internal/tasks"
	tu "github.com/desertthunder/tmx/internal/testing"
	"github.com/urfave/cli/v3"
)

var (
	sourceCreds = models.AccountCredentials{APIKey: "source-key-123", TenantID: "source_loc"}
	destCreds   = models.AccountCredentials{APIKey: "dest-key-456", TenantID: "dest_loc"}
	startedRe   = regexp.MustCompile(`Started migration (\S+)`)
)

type testCLI struct {
	runner   *Runner
	output   *bytes.Buffer
	platform *tu.FakePlatform
	src      *tu.FakeTenant
	dst      *tu.FakeTenant
}

func setupCLI(t *testing.T) *testCLI {
	t.Helper()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "tmx.db")
	config.Engine.RetryDelayMS = 1
	config.Engine.RetryMaxDelayMS = 1
	config.Engine.PollIntervalMS = 5
	config.Platform.RateLimit = 0

	platform := tu.NewFakePlatform()
	src := platform.AddTenant(sourceCreds, "Source Clinic")
	dst := platform.AddTenant(destCreds, "Destination Clinic")
	tags := src.Seed(models.CategoryTags, 2, func(i int) map[string]any {
		return map[string]any{"name": fmt.Sprintf("tag-%d", i)}
	})
	src.Seed(models.CategoryContacts, 5, func(i int) map[string]any {
		return map[string]any{"email": fmt.Sprintf("c%d@example.com", i), "tagIds": []string{tags[i%2]}}
	})

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:    config,
		Connector: platform,
		Logger:    shared.NewLogger(io.Discard),
		Output:    output,
	})

	return &testCLI{runner: runner, output: output, platform: platform, src: src, dst: dst}
}

func runCLI(r *Runner, args ...string) error {
	app := &cli.Command{
		Name:     "tmx",
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"tmx"}, args...))
}

func (c *testCLI) run(args ...string) error {
	return runCLI(c.runner, args...)
}

func credentialArgs() []string {
	return []string{
		"--source-key", sourceCreds.APIKey, "--source-tenant", sourceCreds.TenantID,
		"--dest-key", destCreds.APIKey, "--dest-tenant", destCreds.TenantID,
	}
}

func (c *testCLI) migrate(t *testing.T, extra ...string) (string, error) {
	t.Helper()
	c.output.Reset()
	args := append([]string{"migrate", "--no-tui", "--category", "contacts", "--category", "tags"}, credentialArgs()...)
	err := c.run(append(args, extra...)...)

	m := startedRe.FindStringSubmatch(c.output.String())
	if m == nil {
		return "", err
	}
	return m[1], err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			connector := tu.NewFakePlatform()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Connector:  connector,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.connector != connector {
				t.Error("expected connector to be set")
			}
			if runner.settings.Workers != config.Engine.Workers {
				t.Errorf("expected settings from config, got %d workers", runner.settings.Workers)
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with nil connector uses the platform client", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.connector == nil {
				t.Error("expected a default connector")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "validate", "analyze", "migrate", "jobs", "backup", "serve", "api"} {
			if !names[want] {
				t.Errorf("expected %q to be registered", want)
			}
		}
	})
}

func TestSetupDatabase(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := shared.CreateConfigFile(configPath); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "jobs.db")
	data := strings.Replace(tu.MustReadFile(t, configPath), `path = "./tmx.db"`, fmt.Sprintf("path = %q", dbPath), 1)
	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	c := setupCLI(t)
	if err := c.run("setup", "database", "--config", configPath); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tu.AssertFileExists(t, dbPath)
}

func TestValidateCommand(t *testing.T) {
	c := setupCLI(t)

	t.Run("valid", func(t *testing.T) {
		c.output.Reset()
		if err := c.run(append([]string{"validate"}, credentialArgs()...)...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := c.output.String()
		if !strings.Contains(out, "Source: ✓ Source Clinic") || !strings.Contains(out, "Destination: ✓ Destination Clinic") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		err := c.run("validate", "--source-tenant", "source_loc")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("credentials from environment", func(t *testing.T) {
		t.Setenv(envSourceKey, sourceCreds.APIKey)
		t.Setenv(envSourceTenant, sourceCreds.TenantID)
		t.Setenv(envDestKey, destCreds.APIKey)
		t.Setenv(envDestTenant, destCreds.TenantID)

		if err := c.run("validate"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("revoked destination", func(t *testing.T) {
		c.dst.Revoke()

		c.output.Reset()
		err := c.run(append([]string{"validate", "--json"}, credentialArgs()...)...)
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
		if strings.Contains(c.output.String(), destCreds.APIKey) {
			t.Error("output must not contain the api key")
		}
		if !strings.Contains(c.output.String(), `"isValid": false`) {
			t.Errorf("expected JSON result, got:\n%s", c.output.String())
		}
	})
}

func TestAnalyzeCommand(t *testing.T) {
	c := setupCLI(t)
	args := []string{"analyze", "--source-key", sourceCreds.APIKey, "--source-tenant", sourceCreds.TenantID}

	if err := c.run(append(args, "--json")...); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	previous := filepath.Join(t.TempDir(), "analysis.json")
	if err := os.WriteFile(previous, c.output.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	c.src.Add(models.CategoryContacts, map[string]any{"email": "new@example.com"})
	c.output.Reset()
	if err := c.run(append(args, "--previous", previous)...); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	out := c.output.String()
	if !strings.Contains(out, "contacts count changed since last analysis: 5 -> 6") {
		t.Errorf("expected count change warning, got:\n%s", out)
	}
	if !strings.Contains(out, "Estimated duration") {
		t.Errorf("expected estimate, got:\n%s", out)
	}
}

func TestMigrationOptions(t *testing.T) {
	parse := func(args ...string) (models.MigrationOptions, error) {
		var opts models.MigrationOptions
		var parseErr error
		cmd := &cli.Command{
			Name:  "migrate",
			Flags: migrateCommand(NewRunner(RunnerOpts{})).Flags,
			Action: func(ctx context.Context, cmd *cli.Command) error {
				opts, parseErr = migrationOptions(cmd)
				return nil
			},
		}
		if err := cmd.Run(context.Background(), append([]string{"migrate"}, args...)); err != nil {
			t.Fatal(err)
		}
		return opts, parseErr
	}

	t.Run("defaults to every category", func(t *testing.T) {
		opts, err := parse()
		if err != nil || len(opts.Categories) != len(models.Catalog()) || !opts.MergeDuplicateContacts {
			t.Errorf("unexpected options %+v (%v)", opts, err)
		}
	})

	t.Run("selected categories and flags", func(t *testing.T) {
		opts, err := parse("--category", "opportunities", "--category", "pipelines", "--overwrite", "--merge-duplicates=false")
		if err != nil {
			t.Fatal(err)
		}
		if len(opts.Categories) != 2 || !opts.OverwriteExisting || opts.MergeDuplicateContacts {
			t.Errorf("unexpected options %+v", opts)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		if _, err := parse("--category", "invoices"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestMigrateAndJobs(t *testing.T) {
	c := setupCLI(t)

	id, err := c.migrate(t)
	if err != nil {
		t.Fatalf("expected no error, got %v\n%s", err, c.output.String())
	}
	if id == "" {
		t.Fatalf("expected a job id in output:\n%s", c.output.String())
	}
	if !strings.Contains(c.output.String(), "completed") {
		t.Errorf("expected a completed summary, got:\n%s", c.output.String())
	}
	if c.dst.Len(models.CategoryContacts) != 5 || c.dst.Len(models.CategoryTags) != 2 {
		t.Errorf("unexpected destination contents: %d contacts, %d tags", c.dst.Len(models.CategoryContacts), c.dst.Len(models.CategoryTags))
	}

	t.Run("status", func(t *testing.T) {
		c.output.Reset()
		if err := c.run("jobs", "status", "--json", id); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(c.output.String(), `"status": "completed"`) {
			t.Errorf("unexpected status output:\n%s", c.output.String())
		}
	})

	t.Run("status requires an id", func(t *testing.T) {
		if err := c.run("jobs", "status"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("history", func(t *testing.T) {
		c.output.Reset()
		if err := c.run("jobs", "history", "--destination", destCreds.TenantID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(c.output.String(), id) {
			t.Errorf("expected %s in history:\n%s", id, c.output.String())
		}

		c.output.Reset()
		if err := c.run("jobs", "history", "--destination", "elsewhere"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(c.output.String(), "No jobs found") {
			t.Errorf("expected empty history, got:\n%s", c.output.String())
		}
	})

	t.Run("cancel finished job", func(t *testing.T) {
		if err := c.run("jobs", "cancel", id); !errors.Is(err, shared.ErrJobTerminal) {
			t.Errorf("expected ErrJobTerminal, got %v", err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "errors.csv")
		if err := c.run("jobs", "errors", "--output", path, id); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		data := tu.MustReadFile(t, path)
		if !strings.HasPrefix(data, "Occurred At,Category,Phase,Record ID,Message") {
			t.Errorf("expected CSV header, got %q", data)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		if err := c.run("jobs", "status", "missing"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})
}

func TestMigrateFailure(t *testing.T) {
	c := setupCLI(t)
	c.dst.Reject(models.CategoryContacts, func(rec models.Record) error {
		if rec.String("email") == "c0@example.com" {
			return fmt.Errorf("%w: invalid email", shared.ErrRejected)
		}
		return nil
	})

	id, err := c.migrate(t)
	if err != nil {
		t.Fatalf("record failures must not fail the job: %v", err)
	}

	c.output.Reset()
	if err := c.run("jobs", "errors", id); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(c.output.String(), "contacts,import") || !strings.Contains(c.output.String(), "invalid email") {
		t.Errorf("expected the rejected contact in the error log, got:\n%s", c.output.String())
	}

	c.src.Revoke()
	if _, err := c.migrate(t); err == nil || !strings.Contains(err.Error(), "failed") {
		t.Errorf("expected a failed migration, got %v", err)
	}
}

func TestRemoteJobs(t *testing.T) {
	c := setupCLI(t)
	id, err := c.migrate(t)
	if err != nil {
		t.Fatal(err)
	}

	db, store, err := c.runner.openStore()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	engine := tasks.NewEngine(c.platform, store, tasks.DefaultSettings(), c.runner.logger)
	api := server.NewAPI(server.APIConfig{
		Engine:  engine,
		History: tasks.NewHistory(store),
		Logger:  c.runner.logger,
	})
	ts := httptest.NewServer(server.NewRouter(c.runner.logger, api))
	defer ts.Close()

	t.Run("status", func(t *testing.T) {
		c.output.Reset()
		if err := c.run("jobs", "status", "--server", ts.URL, id); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(c.output.String(), "completed") {
			t.Errorf("unexpected output:\n%s", c.output.String())
		}
	})

	t.Run("cancel", func(t *testing.T) {
		if err := c.run("jobs", "cancel", "--server", ts.URL, id); !errors.Is(err, shared.ErrJobTerminal) {
			t.Errorf("expected ErrJobTerminal, got %v", err)
		}
	})

	t.Run("recent", func(t *testing.T) {
		remote := c.runner.remote(context.Background(), serverCommand(t, ts.URL))
		summaries, err := remote.Recent(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(summaries) != 1 || summaries[0].ID != id {
			t.Errorf("unexpected summaries %+v", summaries)
		}
	})

	t.Run("api get", func(t *testing.T) {
		c.output.Reset()
		if err := c.run("api", "get", "--server", ts.URL, "--json", "/health"); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(c.output.String()) != `{"status":"ok"}` {
			t.Errorf("unexpected output %q", c.output.String())
		}
	})
}

func TestAPIGetTransport(t *testing.T) {
	tests := []struct {
		name     string
		response *http.Response
		err      error
		want     string
	}{
		{
			name:     "unreadable body",
			response: &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: &tu.FCloser{}},
			want:     "failed to read response",
		},
		{
			name:     "error status",
			response: &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(`{"error":"boom"}`))},
			want:     "status 500",
		},
		{
			name: "transport failure",
			err:  errors.New("connection refused"),
			want: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(tt.response, tt.err)},
				Logger:     shared.NewLogger(io.Discard),
				Output:     &bytes.Buffer{},
			})

			err := runCLI(runner, "api", "get", "--server", "http://tmx.test", "/health")
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Fatalf("expected ErrAPIRequest, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error to contain %q, got %v", tt.want, err)
			}
		})
	}
}

// serverCommand returns a parsed command carrying --server.
func serverCommand(t *testing.T, url string) *cli.Command {
	t.Helper()
	var parsed *cli.Command
	cmd := &cli.Command{
		Name:  "remote",
		Flags: []cli.Flag{serverFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			parsed = cmd
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"remote", "--server", url}); err != nil {
		t.Fatal(err)
	}
	return parsed
}

func TestBackupCommand(t *testing.T) {
	c := setupCLI(t)
	dir := t.TempDir()

	err := c.run("backup", "--source-key", sourceCreds.APIKey, "--source-tenant", sourceCreds.TenantID, "--output", dir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "tmx-backup-source_loc-*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected one backup file, got %v", matches)
	}
	if !strings.Contains(tu.MustReadFile(t, matches[0]), "c4@example.com") {
		t.Error("expected contacts in the backup")
	}
	if !strings.Contains(c.output.String(), "Backup Complete!") {
		t.Errorf("unexpected output:\n%s", c.output.String())
	}
}
