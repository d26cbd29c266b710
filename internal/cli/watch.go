package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/feed"
	"github.com/bagoessprasetyo/property-management-sub000/internal/notify"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Start string
	View  string
	Days  int
	For   time.Duration // 0 runs until interrupted
}

// WatchSummary is printed when watch ends.
type WatchSummary struct {
	Notifications int    `json:"notifications"`
	Unread        int    `json:"unread"`
	Refreshes     uint64 `json:"refreshes"`
	Polls         uint64 `json:"polls"`
	Rollovers     int    `json:"rollovers"`
	Connection    string `json:"connection"`
}

// Text renders the summary line.
func (s WatchSummary) Text() string {
	return fmt.Sprintf("watch ended: %d notifications (%d unread), %d refreshes, %d polls, %d rollovers, feed %s\n",
		s.Notifications, s.Unread, s.Refreshes, s.Polls, s.Rollovers, s.Connection)
}

// notificationLine is one streamed notification.
type notificationLine struct {
	notify.Notification
}

func (n notificationLine) Text() string {
	return fmt.Sprintf("%s [%s] %s: %s\n",
		n.CreatedAt.Format(time.TimeOnly), n.Category, n.Title, n.Message)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow remote changes and print notifications",
		Long: `Follow remote changes to the property and print a notification for each.

The grid window is printed at start and again whenever the rollover
schedule (cron syntax, "rollover" in the config) re-anchors it on the
current date. Changes trigger a debounced refresh; a fallback poll
refreshes every poll_interval. When the change feed fails, watch
resubscribes, at most resubscribe.burst times per resubscribe.every.

The feed source is the in-process broker or Redis pub/sub (feed.source).

Examples:
  pmgrid watch --view week
  PMGRID_FEED_SOURCE=redis pmgrid watch --format json
  pmgrid watch --for 10m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "anchor date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.View, "view", string(calendar.ViewRolling), "window kind (day|week|month|rolling)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "rolling window length (default window.days from config)")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this long (default: until interrupted)")

	return cmd
}

// watcher serializes everything watch prints.
type watcher struct {
	opts   *WatchOptions
	s      *session
	out    *OutputFormatter
	logger *zap.Logger

	mu        sync.Mutex
	seen      map[string]bool
	window    calendar.Window
	rollovers int
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	start, err := parseDateFlag("start", opts.Start, today())
	if err != nil {
		return err
	}

	s, err := opts.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	days := opts.Days
	if days == 0 {
		days = s.cfg.Window.Days
	}
	window, err := calendar.ParseView(opts.View, start, days)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid window", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.For > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.For)
		defer cancel()
	}

	src, err := s.source(ctx)
	if err != nil {
		return err
	}

	w := &watcher{
		opts:   opts,
		s:      s,
		out:    opts.formatter(cmd),
		logger: s.logger,
		seen:   make(map[string]bool),
		window: window,
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = s.engine.Run(ctx)
	}()

	if err := w.printGrid(ctx); err != nil {
		return err
	}

	unsubscribe := s.engine.Notifications().Subscribe(w.printNew)
	defer unsubscribe()

	resub := make(chan struct{}, 1)
	s.engine.OnConnectionChange(func(_, to feed.State) {
		if to == feed.StateError {
			signalOnce(resub)
		}
	})
	if err := s.engine.StartFeed(ctx, src); err != nil {
		w.logger.Warn("change feed did not start, will retry", zap.Error(err))
		signalOnce(resub)
	}

	limiter := rate.NewLimiter(rate.Every(s.cfg.Resubscribe.Every), s.cfg.Resubscribe.Burst)
	go w.resubscribeLoop(ctx, limiter, resub)

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Rollover, func() { w.rollover(ctx, days) }); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid rollover schedule %q", s.cfg.Rollover), err)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	s.engine.Stop()
	<-runDone

	refreshes, polls := s.engine.Refreshes()
	center := s.engine.Notifications()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Success(WatchSummary{
		Notifications: center.Len(),
		Unread:        center.UnreadCount(),
		Refreshes:     refreshes,
		Polls:         polls,
		Rollovers:     w.rollovers,
		Connection:    string(s.engine.ConnectionState()),
	})
}

// resubscribeLoop restarts the feed each time it fails, no faster than
// limiter allows.
func (w *watcher) resubscribeLoop(ctx context.Context, limiter *rate.Limiter, resub chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-resub:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		w.logger.Info("resubscribing to change feed", zap.Error(w.s.engine.FeedErr()))
		if err := w.s.engine.Resubscribe(ctx); err != nil {
			w.logger.Warn("resubscribe failed", zap.Error(err))
			signalOnce(resub)
		}
	}
}

// rollover re-anchors the window on today and prints it.
func (w *watcher) rollover(ctx context.Context, days int) {
	window, err := calendar.ParseView(w.opts.View, today(), days)
	if err != nil {
		w.logger.Error("rollover window", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.window = window
	w.rollovers++
	w.mu.Unlock()

	if err := w.printGrid(ctx); err != nil {
		w.logger.Error("rollover grid", zap.Error(err))
	}
}

func (w *watcher) printGrid(ctx context.Context) error {
	w.mu.Lock()
	window := w.window
	w.mu.Unlock()

	g, err := w.s.engine.Grid(ctx, window)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build grid", err)
	}
	result, err := gridResult(g)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Success(result)
}

// printNew prints the notifications not printed yet, oldest first.
func (w *watcher) printNew(list []notify.Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, n := range slices.Backward(list) {
		if w.seen[n.ID] {
			continue
		}
		w.seen[n.ID] = true
		if err := w.out.Success(notificationLine{n}); err != nil {
			w.logger.Warn("printing notification", zap.Error(err))
		}
	}
}

func signalOnce(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
