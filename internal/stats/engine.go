package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ModeSettings tunes one report mode.
type ModeSettings struct {
	BatchSize           int
	BatchDelay          time.Duration
	PRRatio             float64
	IssueRatio          float64
	TimelineSampleRepos int
}

// Settings configures an Engine.
type Settings struct {
	Authenticated     ModeSettings
	Public            ModeSettings
	OperationTimeout  time.Duration
	MaxPagesPerBranch int
	// MaxDiscoveryPages caps each repository or organization listing.
	MaxDiscoveryPages int
	WindowDays        int
	Location          *time.Location
	// MinRemainingThreshold is the rate-limit floor below which batches shrink.
	MinRemainingThreshold int
	// MaxBackoff caps one pacer backoff.
	MaxBackoff time.Duration
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		Authenticated: ModeSettings{
			BatchSize:           10,
			BatchDelay:          100 * time.Millisecond,
			PRRatio:             0.30,
			IssueRatio:          0.20,
			TimelineSampleRepos: 20,
		},
		Public: ModeSettings{
			BatchSize:           5,
			BatchDelay:          200 * time.Millisecond,
			PRRatio:             0.25,
			IssueRatio:          0.15,
			TimelineSampleRepos: 10,
		},
		OperationTimeout:      2 * time.Minute,
		MaxPagesPerBranch:     100,
		MaxDiscoveryPages:     100,
		WindowDays:            365,
		Location:              time.UTC,
		MinRemainingThreshold: 200,
		MaxBackoff:            30 * time.Second,
	}
}

func (s Settings) forMode(mode Mode) ModeSettings {
	if mode == ModePublic {
		return s.Public
	}
	return s.Authenticated
}

// Config wires an Engine.
type Config struct {
	Connector Connector
	Settings  Settings
	Logger    *zap.Logger
	Recorder  Recorder
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Credentials select the report mode: a token for private data, otherwise a username.
type Credentials struct {
	Token    string
	Username string
}

// Engine computes yearly statistics reports.
type Engine struct {
	connector Connector
	settings  Settings
	logger    *zap.Logger
	recorder  Recorder
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	settings := cfg.Settings
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.MaxPagesPerBranch <= 0 {
		settings.MaxPagesPerBranch = 100
	}
	if settings.MaxDiscoveryPages <= 0 {
		settings.MaxDiscoveryPages = 100
	}
	if settings.WindowDays <= 0 {
		settings.WindowDays = 365
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var recorder Recorder = nopRecorder{}
	if cfg.Recorder != nil {
		recorder = cfg.Recorder
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = githubapi.SleepContext
	}
	return &Engine{
		connector: cfg.Connector,
		settings:  settings,
		logger:    logger,
		recorder:  recorder,
		now:       now,
		sleep:     sleep,
	}, nil
}

// Window returns the contribution window ending today.
func (e *Engine) Window() Window {
	return WindowEndingAt(e.now().In(e.settings.Location), e.settings.WindowDays)
}

// ValidateToken returns the profile behind token.
func (e *Engine) ValidateToken(ctx context.Context, token string) (githubapi.User, error) {
	if strings.TrimSpace(token) == "" {
		return githubapi.User{}, &AuthError{Status: githubapi.EndpointStatusUnauthorized}
	}
	clients, err := e.connector.Connect(token)
	if err != nil {
		return githubapi.User{}, fmt.Errorf("connect: %w", err)
	}
	return ValidateToken(ctx, clients.Source)
}

// run is the state owned by one report computation.
type run struct {
	src          Source
	settings     ModeSettings
	maxPages     int
	maxListPages int
	window       Window
	matcher      Matcher
	pacer        *Pacer
	recorder     Recorder
	logger       *zap.Logger

	// cappedListings names discovery scopes that stopped at maxListPages.
	cappedListings []string
}

func (r *run) observe(endpoint string, status githubapi.EndpointStatus, metadata githubapi.CallMetadata, err error) {
	label := string(status)
	if err != nil {
		label = "error"
	}
	if label == "" {
		label = string(githubapi.EndpointStatusUnknown)
	}
	r.recorder.GitHubRequest(endpoint, label)
	if metadata.LastRateHeaders.Present {
		r.recorder.RateLimitRemaining(metadata.LastRateHeaders.Remaining)
	}
	r.pacer.Observe(metadata)
}

// GetStats computes the report for creds. Identity and discovery failures are
// returned as *StatsError; per-repository failures only mark the report incomplete.
func (e *Engine) GetStats(ctx context.Context, creds Credentials) (Result, error) {
	token := strings.TrimSpace(creds.Token)
	username := strings.TrimSpace(creds.Username)
	mode := ModeAuthenticated
	if token == "" {
		mode = ModePublic
	}
	if token == "" && username == "" {
		return Result{}, fmt.Errorf("token or username is required")
	}

	started := e.now()
	result, err := e.getStats(ctx, mode, token, username)
	outcome := OutcomeComplete
	switch {
	case err != nil:
		outcome = OutcomeError
	case !result.Stats.Complete:
		outcome = OutcomePartial
	}
	e.recorder.ReportCompleted(mode, outcome, e.now().Sub(started))
	return result, err
}

func (e *Engine) getStats(ctx context.Context, mode Mode, token, username string) (Result, error) {
	if e.settings.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.OperationTimeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("year-in-code/internal/stats").Start(ctx, "stats.get_stats")
	defer span.End()
	span.SetAttributes(attribute.String("stats.mode", string(mode)))

	clients, err := e.connector.Connect(token)
	if err != nil {
		span.SetStatus(codes.Error, "connect failed")
		return Result{}, &StatsError{Stage: "connect", Err: err}
	}

	settings := e.settings.forMode(mode)
	r := &run{
		src:          clients.Source,
		settings:     settings,
		maxPages:     e.settings.MaxPagesPerBranch,
		maxListPages: e.settings.MaxDiscoveryPages,
		pacer: NewPacer(PacerConfig{
			Interval:  settings.BatchDelay,
			Threshold: e.settings.MinRemainingThreshold,
			MaxWait:   e.settings.MaxBackoff,
			Sleep:     e.sleep,
		}),
		recorder: e.recorder,
		logger:   e.logger.With(zap.String("mode", string(mode))),
	}

	var user githubapi.User
	var emails []string
	if mode == ModeAuthenticated {
		identity, err := ResolveIdentity(ctx, r.src, r.logger)
		if err != nil {
			span.SetStatus(codes.Error, "identity failed")
			return Result{}, &StatsError{Stage: "identity", Err: err}
		}
		user, emails = identity.User, identity.Emails
	} else {
		user, err = e.publicUser(ctx, r, username)
		if err != nil {
			span.SetStatus(codes.Error, "identity failed")
			return Result{}, &StatsError{Stage: "identity", Err: err}
		}
	}
	r.logger = r.logger.With(zap.String("login", user.Login))
	r.matcher = NewMatcher(user.Login, emails)

	var repos []githubapi.Repository
	if mode == ModeAuthenticated {
		repos, err = r.discoverAuthenticated(ctx)
	} else {
		repos, err = r.discoverPublic(ctx, user.Login)
	}
	if err != nil {
		span.SetStatus(codes.Error, "discovery failed")
		return Result{}, &StatsError{Stage: "discovery", Err: err}
	}
	span.SetAttributes(attribute.Int("stats.repositories", len(repos)))

	r.window = e.Window()
	walks := r.walkAll(ctx, repos, walkCount)
	pinned := r.pinnedSet(ctx, clients.Pinned, user.Login)

	report := assemble(repos, walks, pinned, settings)
	report.Window = r.window
	report.CommitTimeline, report.TimelineApproximate = r.timeline(ctx, repos, walks, report.TotalCommits)
	if len(r.cappedListings) > 0 {
		report.Complete = false
		report.TruncatedListings = append([]string(nil), r.cappedListings...)
		sort.Strings(report.TruncatedListings)
	}

	if !report.Complete {
		r.logger.Warn("report is incomplete",
			zap.Strings("truncated_repos", report.TruncatedRepos),
			zap.Strings("truncated_listings", report.TruncatedListings),
		)
	}
	span.SetAttributes(
		attribute.Int("stats.total_commits", report.TotalCommits),
		attribute.Bool("stats.complete", report.Complete),
	)
	span.SetStatus(codes.Ok, "report computed")
	return Result{Mode: mode, User: user, Stats: report}, nil
}

func (e *Engine) publicUser(ctx context.Context, r *run, username string) (githubapi.User, error) {
	result, err := r.src.GetUser(ctx, username)
	r.observe("user", result.Status, result.Metadata, err)
	if err != nil {
		return githubapi.User{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	switch result.Status {
	case githubapi.EndpointStatusOK:
		return result.User, nil
	case githubapi.EndpointStatusNotFound:
		return githubapi.User{}, ErrUserNotFound
	case githubapi.EndpointStatusUnauthorized, githubapi.EndpointStatusForbidden:
		return githubapi.User{}, &AuthError{Status: result.Status}
	default:
		return githubapi.User{}, fmt.Errorf("get user %q returned status %q", username, result.Status)
	}
}

// walkAll walks repos in paced batches and returns one RepoWalk per repo, by index.
func (r *run) walkAll(ctx context.Context, repos []githubapi.Repository, mode walkMode) []RepoWalk {
	walks := make([]RepoWalk, len(repos))
	next := 0
	for next < len(repos) {
		if err := r.pacer.Wait(ctx); err != nil {
			break
		}
		size := r.pacer.BatchSize(r.settings.BatchSize)
		end := min(next+size, len(repos))

		var group errgroup.Group
		group.SetLimit(size)
		for i := next; i < end; i++ {
			group.Go(func() error {
				walks[i] = r.walkRepository(ctx, repos[i], mode)
				return nil
			})
		}
		_ = group.Wait()
		next = end
	}

	for i := next; i < len(repos); i++ {
		if repos[i].Fork {
			walks[i] = RepoWalk{Complete: true, StopReason: StopFork}
			continue
		}
		walks[i] = RepoWalk{StopReason: StopDeadline}
	}
	return walks
}

func (r *run) pinnedSet(ctx context.Context, pinned PinnedSource, login string) map[string]struct{} {
	set := make(map[string]struct{})
	if pinned == nil || ctx.Err() != nil {
		return set
	}
	names, err := pinned.ListPinnedRepositories(ctx, login)
	if err != nil {
		r.recorder.GitHubRequest("graphql_pinned", "error")
		r.logger.Debug("pinned repository lookup failed", zap.Error(err))
		return set
	}
	r.recorder.GitHubRequest("graphql_pinned", string(githubapi.EndpointStatusOK))
	for _, name := range names {
		set[strings.ToLower(name)] = struct{}{}
	}
	return set
}

func assemble(repos []githubapi.Repository, walks []RepoWalk, pinned map[string]struct{}, settings ModeSettings) Report {
	report := Report{
		TopRepos:  make([]Repository, 0, len(repos)),
		Languages: make(map[string]int),
		Complete:  true,
	}
	for i, source := range repos {
		walk := walks[i]
		repo := repositoryFromSource(source)
		repo.CommitsCount = walk.Count
		repo.PRsCount = estimate(walk.Count, settings.PRRatio)
		_, repo.IsPinned = pinned[strings.ToLower(source.FullName)]
		repo.Truncated = !walk.Complete

		report.TotalCommits += walk.Count
		report.TotalStars += source.Stars
		if source.Language != "" {
			report.Languages[source.Language]++
		}
		if repo.Truncated {
			report.Complete = false
			report.TruncatedRepos = append(report.TruncatedRepos, source.FullName)
		}
		report.TopRepos = append(report.TopRepos, repo)
	}
	report.TotalPRs = estimate(report.TotalCommits, settings.PRRatio)
	report.TotalIssues = estimate(report.TotalCommits, settings.IssueRatio)

	sort.SliceStable(report.TopRepos, func(i, j int) bool {
		left, right := report.TopRepos[i], report.TopRepos[j]
		if left.CommitsCount != right.CommitsCount {
			return left.CommitsCount > right.CommitsCount
		}
		if left.Stars != right.Stars {
			return left.Stars > right.Stars
		}
		return left.FullName < right.FullName
	})
	sort.Strings(report.TruncatedRepos)
	return report
}

func estimate(commits int, ratio float64) int {
	if commits <= 0 || ratio <= 0 {
		return 0
	}
	return int(math.Floor(float64(commits) * ratio))
}

// timeline re-walks repositories with commits to collect commit dates. When
// only the busiest repositories are sampled, buckets are scaled so the
// timeline sums to roughly totalCommits and the result is flagged approximate.
func (r *run) timeline(ctx context.Context, repos []githubapi.Repository, walks []RepoWalk, totalCommits int) ([]TimelinePoint, bool) {
	type candidate struct {
		repo  githubapi.Repository
		count int
	}
	candidates := make([]candidate, 0, len(repos))
	for i, repo := range repos {
		if walks[i].Count > 0 {
			candidates = append(candidates, candidate{repo: repo, count: walks[i].Count})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].repo.FullName < candidates[j].repo.FullName
	})

	sampled := false
	if limit := r.settings.TimelineSampleRepos; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
		sampled = true
	}
	targets := make([]githubapi.Repository, 0, len(candidates))
	for _, c := range candidates {
		targets = append(targets, c.repo)
	}

	approximate := sampled
	var dates []time.Time
	for _, walk := range r.walkAll(ctx, targets, walkDates) {
		dates = append(dates, walk.Dates...)
		if !walk.Complete {
			approximate = true
		}
	}

	points := buildTimeline(r.window, dates)
	if sampled && len(dates) > 0 {
		points = scaleTimeline(points, totalCommits, len(dates))
	}
	r.logger.Debug("timeline built",
		zap.Int("sampled_repos", len(targets)),
		zap.Int("sampled_dates", len(dates)),
		zap.Int("timeline_total", timelineTotal(points)),
		zap.Bool("approximate", approximate),
	)
	return points, approximate
}

// IsNotFound reports whether err means the requested user does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
