package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/config"
	"github.com/dmitrijs2005/gophupload/internal/client/connectivity"
	"github.com/dmitrijs2005/gophupload/internal/client/convergence"
	"github.com/dmitrijs2005/gophupload/internal/client/credential"
	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/client/governor"
	"github.com/dmitrijs2005/gophupload/internal/client/health"
	"github.com/dmitrijs2005/gophupload/internal/client/ledger"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/notify"
	"github.com/dmitrijs2005/gophupload/internal/client/retry"
	"github.com/dmitrijs2005/gophupload/internal/client/session"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/client/transport"
	"github.com/dmitrijs2005/gophupload/internal/client/validation"
	"github.com/dmitrijs2005/gophupload/internal/client/verify"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/samber/lo"
	"golang.org/x/term"
)

// ErrIncomplete is returned by Run when at least one file did not finish
// verified.
var ErrIncomplete = errors.New("some uploads did not complete")

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// sleep backs retry waits and the fallback delay.
var sleep retry.Sleeper = retry.Sleep

// tokenLeeway is how close to expiry a token is still accepted.
const tokenLeeway = 30 * time.Second

type App struct {
	config  *config.Config
	files   []string
	out     io.Writer
	logger  logging.Logger
	form    *convergence.MemoryForm
	orch    *session.Orchestrator
	watcher *connectivity.Watcher
	closers []io.Closer
	forced  strategy.Strategy
	gov     *governor.Governor
}

// credentials builds the token chain: configured token first, then a
// hidden prompt when stdin is a terminal.
func credentials(c *config.Config, out io.Writer) credential.Source {
	chain := credential.Chain{credential.Static(c.Token)}
	if isTerminal(int(os.Stdin.Fd())) {
		chain = append(chain, credential.NewPrompt(out))
	}
	return credential.NewExpiryChecked(chain, tokenLeeway)
}

func NewApp(c *config.Config, files []string, out io.Writer) (*App, error) {
	if len(files) == 0 {
		return nil, errors.New("no files given")
	}

	logger := logging.New(os.Stderr, c.LogLevel, c.LogFormat)

	profile, ok := validation.ProfileByName(c.Profile)
	if !ok {
		return nil, fmt.Errorf("unknown validation profile %q", c.Profile)
	}

	app := &App{config: c, files: files, out: out, logger: logger, form: &convergence.MemoryForm{}}

	if c.Strategy != "" {
		st, ok := strategy.Parse(c.Strategy)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", c.Strategy)
		}
		app.forced = st
	}

	tr := transport.New(c.ServerURL, &http.Client{Timeout: c.RequestTimeout})
	quality := verify.NewQualityTracker()
	prober := verify.NewProber(verify.Config{
		MaxAttempts: c.VerifyAttempts,
		Timeout:     c.VerifyTimeout,
	}, tr.ArtifactBase(), &http.Client{}, quality, logger.With("module", "verify"))

	if c.HealthAddr != "" {
		conn, err := connectivity.Dial(c.HealthAddr)
		if err != nil {
			return nil, fmt.Errorf("dial health service: %w", err)
		}
		app.closers = append(app.closers, conn)
		app.watcher = connectivity.NewWatcher(conn, "", quality, logger.With("module", "connectivity"))
	}

	gov := governor.New(c.GovernorThreshold, governor.DefaultWindow)
	app.gov = gov
	printer := newProgressPrinter(out)

	orch, err := session.New(session.Config{
		Profile:              profile,
		MaxRetries:           c.MaxRetries,
		ProgressiveThreshold: c.ProgressiveThreshold,
		ChunkSize:            c.ChunkSize,
		ReadTimeout:          c.ReadTimeout,
		BatchConcurrency:     c.BatchConcurrency,
		OnProgress:           printer.update,
	}, session.Deps{
		Transport:   tr,
		Prober:      prober,
		Credentials: credentials(c, out),
		Ledger:      ledger.New(0, 0),
		// fallbacks are driven synchronously by Run
		Health:   health.NewController(health.Config{}, gov, logger.With("module", "health")),
		Governor: gov,
		Notifier: notify.Multi{notify.NewWriterNotifier(out), notify.NewLogNotifier(logger)},
		Form:     app.form,
		Logger:   logger,
		Sleeper:  func(ctx context.Context, d time.Duration) error { return sleep(ctx, d) },
	})
	if err != nil {
		return nil, err
	}
	app.orch = orch
	return app, nil
}

func (a *App) sources() ([]chunker.Source, error) {
	out := make([]chunker.Source, 0, len(a.files))
	for _, f := range a.files {
		src, err := chunker.NewFileSource(f)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// Run uploads every file, falls back to simpler strategies for retryable
// failures when auto fallback is enabled and prints a summary.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		for _, c := range a.closers {
			_ = c.Close()
		}
	}()

	if a.watcher != nil {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.watcher.Run(wctx, a.config.OnlineCheckInterval)
	}

	srcs, err := a.sources()
	if err != nil {
		return err
	}

	var tasks []models.Task
	if a.forced != strategy.None {
		tasks, err = a.orch.UploadWith(ctx, a.forced, srcs...)
	} else {
		tasks, err = a.orch.Upload(ctx, srcs...)
	}
	if err != nil {
		a.logger.Debug(ctx, "upload finished with errors", "error", err)
	}

	if a.config.AutoFallback {
		tasks = a.fallback(ctx, tasks)
	}

	a.summary(tasks)
	if ref, _ := a.form.ImageRef(ctx); ref != "" {
		fmt.Fprintf(a.out, "image reference: %s\n", ref)
	}

	if !lo.EveryBy(tasks, func(t models.Task) bool { return t.Succeeded() }) {
		return ErrIncomplete
	}
	return nil
}

// escalatable reports whether a simpler strategy could help t.
func escalatable(t models.Task) bool {
	if t.Succeeded() || t.Strategy == strategy.Emergency || t.Unverified() {
		return false
	}
	return t.LastError == nil || failure.Retryable(t.LastError.Category)
}

// switchable reports whether automatic mode switching may leave st: the
// strategy must be unhealthy and the governor must not be tripped.
func (a *App) switchable(ctx context.Context, st strategy.Strategy) bool {
	if a.gov.Suspended() {
		a.logger.Warn(ctx, "automatic fallback suppressed", "strategy", st)
		return false
	}
	return a.orch.Health()[st].Level() == health.Unhealthy
}

// fallback re-runs failed tasks down the strategy chain while their
// strategy stays unhealthy. A task stops once it succeeds, fails terminally
// or reaches emergency.
func (a *App) fallback(ctx context.Context, tasks []models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	queue := tasks
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if !escalatable(t) || !a.switchable(ctx, t.Strategy) {
			out = append(out, t)
			continue
		}

		fmt.Fprintf(a.out, "%s: switching to the %s uploader in %s\n", t.FileName, strategy.Fallback(t.Strategy), a.config.AutoFallbackDelay)
		if err := sleep(ctx, a.config.AutoFallbackDelay); err != nil {
			out = append(out, t)
			continue
		}

		next, err := a.orch.Escalate(ctx, t.ID)
		if errors.Is(err, session.ErrNoFallback) || len(next) == 0 {
			out = append(out, t)
			continue
		}
		queue = append(queue, next...)
	}
	return out
}

func (a *App) summary(tasks []models.Task) {
	fmt.Fprintln(a.out, "summary:")
	for _, t := range tasks {
		switch {
		case t.Succeeded():
			fmt.Fprintf(a.out, "  %-30s complete  %s (%s)\n", t.FileName, t.Reference, t.Strategy)
		case t.Unverified():
			fmt.Fprintf(a.out, "  %-30s unverified  %s (%s)\n", t.FileName, t.Reference, t.Strategy)
		case t.LastError != nil:
			fmt.Fprintf(a.out, "  %-30s failed  %s [%s] after %d attempt(s)\n", t.FileName, t.LastError.Message, t.LastError.Category, t.RetryCount)
		default:
			fmt.Fprintf(a.out, "  %-30s %s\n", t.FileName, t.Phase)
		}
	}
}
