package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/macropulse/macropulse/internal/brief"
	"github.com/macropulse/macropulse/internal/cachemanager"
	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/distribute"
	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/flags"
	"github.com/macropulse/macropulse/internal/git"
	"github.com/macropulse/macropulse/internal/infrastructure/postgres"
	"github.com/macropulse/macropulse/internal/infrastructure/sqlite"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/runs/domain"
	"github.com/macropulse/macropulse/internal/series"
	"github.com/macropulse/macropulse/internal/tracing"
)

// memoryCacheTTL bounds how long series stay in the in-process front cache.
const memoryCacheTTL = 10 * time.Minute

// openStore opens the configured run store.
func openStore(ctx context.Context, c config.Config, l config.Layout) (domain.Store, error) {
	switch c.Store.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, c.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening run store: %w", err)
		}
		log.Debug(log.CatDB, "Opened postgres run store")
		return db, nil
	default:
		db, err := sqlite.NewDB(l.StateDB)
		if err != nil {
			return nil, fmt.Errorf("opening run store: %w", err)
		}
		log.Debug(log.CatDB, "Opened sqlite run store", "path", l.StateDB)
		return db, nil
	}
}

func newTracing(ctx context.Context, c config.Config, l config.Layout) (*tracing.Provider, error) {
	tc := tracing.DefaultConfig()
	tc.Enabled = c.Tracing.Enabled
	if c.Tracing.Exporter != "" {
		tc.Exporter = c.Tracing.Exporter
	}
	tc.FilePath = l.TraceFile
	if c.Tracing.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Tracing.OTLPEndpoint
	}
	if c.Tracing.SampleRate > 0 {
		tc.SampleRate = c.Tracing.SampleRate
	}
	return tracing.NewProvider(ctx, tc)
}

func newHTTPClient(c config.Config) *fetch.Client {
	return fetch.NewClient(fetch.ClientOptions{
		Timeout:     c.Fetch.Timeout,
		UserAgent:   c.Fetch.UserAgent,
		MaxAttempts: c.Fetch.MaxAttempts,
	})
}

// newSeriesCache layers a go-cache front over the on-disk cache directory.
func newSeriesCache(c config.Config, l config.Layout) cachemanager.CacheManager[string, []series.Observation] {
	front := cachemanager.NewInMemoryCacheManager[[]series.Observation]("series", memoryCacheTTL, cachemanager.DefaultCleanupInterval)
	back := cachemanager.NewDiskCacheManager[[]series.Observation](l.CacheDir, c.Fetch.CacheMaxAge)
	return cachemanager.NewTieredCacheManager[string, []series.Observation](front, back, memoryCacheTTL)
}

func newFetcher(c config.Config, l config.Layout, client *fetch.Client, s config.Secrets, fl *flags.Registry, tracer trace.Tracer) *fetch.Fetcher {
	fred := fetch.NewFREDChain(
		fetch.NewFREDSource(client, c.Fetch.FREDBaseURL, s.FREDAPIKey),
		fetch.NewFREDCSVSource(client, c.Fetch.FREDCSVURL),
		fl.Enabled(flags.FlagFREDCSVFallback),
	)
	return fetch.New(fetch.Options{
		Catalog: c.Catalog,
		Sources: map[string]fetch.Source{
			"fred":  fred,
			"yahoo": fetch.NewYahooSource(client, c.Fetch.YahooBaseURL),
		},
		Cache:       newSeriesCache(c, l),
		CacheTTL:    c.Fetch.CacheMaxAge,
		Concurrency: c.Fetch.Concurrency,
		Tracer:      tracer,
	})
}

// newBriefService returns nil when the brief is disabled.
func newBriefService(ctx context.Context, c config.Config, client *fetch.Client, s config.Secrets, fl *flags.Registry,
	snapshots domain.SnapshotRepository, tracer trace.Tracer) *brief.Service {
	if !c.Brief.Enabled {
		return nil
	}
	return brief.New(brief.Options{
		Config:    c.Brief,
		Quotes:    fetch.NewYahooSource(client, c.Fetch.YahooBaseURL),
		News:      brief.NewGoogleNews(client, c.Brief.News.RSSBaseURL),
		Analyst:   newAnalyst(ctx, c, s, fl),
		Snapshots: snapshots,
		Tracer:    tracer,
	})
}

// newAnalyst picks the model analyst when it is enabled and keyed. A nil
// result leaves the brief to the rule-based analyst.
func newAnalyst(ctx context.Context, c config.Config, s config.Secrets, fl *flags.Registry) brief.Analyst {
	a := c.Brief.Analysis
	if a.Provider != "gemini" || !fl.Enabled(flags.FlagLLMCommentary) {
		return nil
	}
	g, err := brief.NewGeminiAnalyst(ctx, s.AnalysisAPIKey, a.Model, a.Timeout)
	if err != nil {
		if errors.Is(err, brief.ErrNoAPIKey) {
			log.Info(log.CatLLM, "No analysis key set, using rule-based commentary", "env", config.EnvAnalysisAPIKey)
		} else {
			log.Warn(log.CatLLM, "Model analyst unavailable, using rule-based commentary", "error", err.Error())
		}
		return nil
	}
	return g
}

// newDistributor returns nil when distribution is disabled.
func newDistributor(c config.Config, l config.Layout, s config.Secrets, fl *flags.Registry) (distribute.Distributor, error) {
	d := c.Distribution
	if !d.Enabled {
		return nil, nil
	}
	repoDir, err := c.RepoDir(l)
	if err != nil {
		return nil, fmt.Errorf("resolving repo_dir: %w", err)
	}
	opts := distribute.GitOptions{
		RepoDir:        repoDir,
		Remote:         d.Remote,
		Branch:         d.Branch,
		Author:         git.Author{Name: d.AuthorName, Email: d.AuthorEmail},
		CommitTemplate: d.CommitTemplate,
	}

	var targets []distribute.Distributor
	switch d.Driver {
	case "gogit":
		targets = append(targets, distribute.NewGoGitDistributor(opts, s.GitToken))
	default:
		targets = append(targets, distribute.NewGitDistributor(git.NewRealExecutor(repoDir), opts))
	}

	if fl.Enabled(flags.FlagS3Mirror) {
		mirror, err := distribute.NewS3Mirror(distribute.S3Options{
			Endpoint:  d.S3.Endpoint,
			Region:    d.S3.Region,
			AccessKey: s.S3AccessKey,
			SecretKey: s.S3SecretKey,
			Bucket:    d.S3.Bucket,
			Prefix:    d.S3.Prefix,
			UseSSL:    d.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring s3 mirror: %w", err)
		}
		targets = append(targets, mirror)
	}
	return distribute.NewMulti(targets...), nil
}

// redactDSN hides the password of a connection string for display.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if dsn == "" {
			return ""
		}
		return "(set)"
	}
	return u.Redacted()
}
