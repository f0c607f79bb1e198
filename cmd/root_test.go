package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlsearch/internal/app"
	"github.com/JakeFAU/crawlsearch/internal/config"
	"github.com/JakeFAU/crawlsearch/internal/storage/memory"
)

// useApp points the factory at one shared in-memory app for the test.
func useApp(t *testing.T) App {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	a, err := app.Build(context.Background(), cfg, nil, app.WithStore(memory.New()))
	require.NoError(t, err)

	prev := newApp
	newApp = func(context.Context, string) (App, error) { return a, nil }
	t.Cleanup(func() { newApp = prev })
	return a
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEnqueueAndManageDomains(t *testing.T) {
	a := useApp(t)

	out, err := run(t, "enqueue", "--tier", "2", "https://Example.com/start")
	require.NoError(t, err)
	require.Contains(t, out, "queued https://Example.com/start")

	out, err = run(t, "domain", "set", "example.com", "--enabled")
	require.NoError(t, err)
	require.Contains(t, out, "example.com enabled=true tier=2")

	d, err := a.Store().GetDomainByHost(context.Background(), "example.com")
	require.NoError(t, err)
	require.True(t, d.Enabled)

	out, err = run(t, "domain", "list")
	require.NoError(t, err)
	require.Contains(t, out, "HOST")
	require.Contains(t, out, "example.com")
	require.Contains(t, out, "unchecked")
}

func TestDomainSetUnknownHost(t *testing.T) {
	useApp(t)

	_, err := run(t, "domain", "set", "missing.example", "--enabled")
	require.ErrorContains(t, err, "unknown domain")
}

func TestEnqueueRejectsInvalidURL(t *testing.T) {
	useApp(t)

	_, err := run(t, "enqueue", "mailto:someone@example.com")
	require.Error(t, err)
}

func TestSearchMigrateReindexCrawl(t *testing.T) {
	useApp(t)

	out, err := run(t, "search", "quick", "fox")
	require.NoError(t, err)
	require.Contains(t, out, "0 result(s)")

	out, err = run(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "applied 0 migration(s)")

	out, err = run(t, "reindex")
	require.NoError(t, err)
	require.Contains(t, out, "indexed 0, skipped 0")

	out, err = run(t, "crawl", "--limit", "5")
	require.NoError(t, err)
	require.Equal(t, "idle\t1\n", out)
}

func TestFactoryErrorIsReported(t *testing.T) {
	prev := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { newApp = prev })

	_, err := run(t, "migrate")
	require.ErrorContains(t, err, "boom")
}

func TestDefaultFactoryRejectsMissingConfig(t *testing.T) {
	_, err := run(t, "--config", "/nonexistent/crawlsearch.yaml", "migrate")
	require.ErrorContains(t, err, "read config")
}
