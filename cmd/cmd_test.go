package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/app"
	"github.com/JakeFAU/pinharvest/internal/config"
)

const stitchPage = `<html><head>
<title>Stitch - Ohana - Disneyland Resort - Disney Pin</title>
<meta property="og:image" content="https://pinandpop.s3.amazonaws.com/images/pinails/5_abcd_pinail.webp">
</head><body><table>
<tr><th>Pin</th><td>Stitch</td></tr>
<tr><th>Series</th><td><a href="/series/1">Ohana</a></td></tr>
<tr><th>Release Date</th><td>2024-03-01</td></tr>
</table></body></html>`

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pins/5/pin-5" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(stitchPage))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// withTestApp swaps the app factory for one backed by fs and a config pointed at baseURL.
func withTestApp(t *testing.T, baseURL string, fs afero.Fs, mutate func(*config.Config)) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Site.BaseURL = baseURL
	cfg.Crawl.RequestDelay = 0
	cfg.Crawl.BatchDelay = 0
	cfg.HTTP.MaxAttempts = 1
	cfg.HTTP.BackoffBase = 0
	cfg.Debug.Dir = "debug"
	if mutate != nil {
		mutate(&cfg)
	}

	prev := newApp
	newApp = func(string) (App, error) {
		return app.NewWithDeps(cfg, zap.NewNop(), fs), nil
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLookupPrintsJSONLines(t *testing.T) {
	srv := catalogServer(t)
	fs := afero.NewMemMapFs()
	withTestApp(t, srv.URL, fs, nil)

	out, err := execute(t, "lookup", "5", "6")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var found lookupResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &found))
	assert.Equal(t, "ok", found.Status)
	require.NotNil(t, found.Record)
	assert.Equal(t, "Stitch", found.Record.Name)
	assert.Equal(t, "Ohana", found.Record.Series)
	assert.Equal(t, 2024, found.Record.Year)
	assert.Equal(t, "https://pinandpop.s3.amazonaws.com/images/pins/5_abcd.jpg", found.Record.ImageURL)

	var missing lookupResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &missing))
	assert.Equal(t, lookupResult{ID: 6, Status: "not_found"}, missing)

	exists, err := afero.Exists(fs, "pins_2025.csv")
	require.NoError(t, err)
	assert.False(t, exists, "lookup must not write the dataset")
}

func TestLookupRejectsBadID(t *testing.T) {
	withTestApp(t, "https://pinandpop.com", afero.NewMemMapFs(), nil)

	_, err := execute(t, "lookup", "abc")
	require.ErrorContains(t, err, `invalid pin id "abc"`)
}

func TestCrawlWritesDatasetAndCheckpoint(t *testing.T) {
	srv := catalogServer(t)
	fs := afero.NewMemMapFs()
	withTestApp(t, srv.URL, fs, func(c *config.Config) {
		c.Crawl.StartID = 7
		c.Crawl.BatchSize = 2
		c.Crawl.Target = 1
		c.Output.Dataset = "out/pins.csv"
		c.Output.Checkpoint = "out/last_processed_id.txt"
		c.Output.ErrorLog = "out/errors.log"
	})

	_, err := execute(t, "crawl")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "out/pins.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "PinID,pin_name,"))
	assert.Contains(t, string(data), "5,Stitch,")

	checkpoint, err := afero.ReadFile(fs, "out/last_processed_id.txt")
	require.NoError(t, err)
	assert.Equal(t, "5", string(checkpoint))

	// A second run finds the target already met and fetches nothing.
	_, err = execute(t, "crawl")
	require.NoError(t, err)
	again, err := afero.ReadFile(fs, "out/pins.csv")
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestImportRequiresDSN(t *testing.T) {
	withTestApp(t, "https://pinandpop.com", afero.NewMemMapFs(), nil)

	_, err := execute(t, "import")
	require.ErrorContains(t, err, "postgres.dsn")
}

func TestRootReportsConfigErrors(t *testing.T) {
	_, err := execute(t, "--config", "/does/not/exist.yaml", "crawl")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestResolveAppWithoutApp(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
