package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"tutorcal/internal/backend"
	"tutorcal/internal/booking"
	"tutorcal/internal/capture"
	"tutorcal/internal/config"
	"tutorcal/internal/ics"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
	"tutorcal/internal/note"
	"tutorcal/internal/schedule"
	"tutorcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	debug      bool
}

// holidayHorizon is how far ahead holiday feeds are expanded.
const holidayHorizon = 400

func main() {
	flags := parseFlags()

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Init(conf.Environment); err != nil {
		appLog.Error("failed to init logger", err)
	}
	defer appLog.Sync()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("tutorcal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"start_hour", conf.StartHour,
		"end_hour", conf.EndHour,
		"refresh", conf.RefreshCron,
		"teachers", len(conf.Teachers),
		"holiday_feeds", len(conf.HolidayFeeds),
		"snapshot", conf.Snapshot.Enabled,
		"once", flags.once,
	)
	if conf.APIURL == "" {
		appLog.Error("api_url is not configured", errors.New("missing api_url"))
		os.Exit(1)
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone, falling back to local", err, "timezone", conf.Timezone)
		loc = time.Local
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx, conf, loc)

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           app.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if flags.once {
		os.Exit(app.runOnce(ctx, httpSrv))
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(conf.RefreshCron, func() { app.refresh(ctx) }); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	if _, err := c.AddFunc("@daily", func() { app.refreshHolidays(ctx) }); err != nil {
		appLog.Error("failed to schedule holiday refresh", err)
	}
	c.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info("http server listening", "addr", conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		app.refreshHolidays(gctx)
		app.refresh(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("shutting down")
		<-c.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.Error("tutorcal stopped with error", err)
		os.Exit(1)
	}
	app.sched.Wait()
	appLog.Info("tutorcal exiting")
}

// app holds the wired components shared by the HTTP server and the jobs.
type app struct {
	conf     *config.Config
	loc      *time.Location
	sched    *schedule.Scheduler
	holidays *ics.Calendar
	server   *web.Server
}

func newApp(ctx context.Context, conf *config.Config, loc *time.Location) *app {
	client := backend.NewClient(conf.APIURL, nil)
	teachers := normalize.NewTeachers(conf.Teachers, conf.OthersLabel)

	sched := schedule.New(schedule.Options{
		Source:         client,
		Location:       loc,
		StartHour:      conf.StartHour,
		EndHour:        conf.EndHour,
		PrefetchBefore: conf.PrefetchBeforeDays,
		PrefetchAfter:  conf.PrefetchAfterDays,
		Context:        ctx,
	})

	mut := booking.New(client, sched, teachers, loc)

	var holidays *ics.Calendar
	if len(conf.HolidayFeeds) > 0 {
		holidays = ics.NewCalendar(ics.NewFetcher(nil), conf.HolidayFeeds, loc)
		mut.UseHolidays(holidays)
	}

	server := web.NewServer(web.Deps{
		Config:   conf,
		Schedule: sched,
		Mutator:  mut,
		Teachers: teachers,
		Notes:    note.NewStore(conf.StateDir),
		Holidays: holidays,
	})

	return &app{conf: conf, loc: loc, sched: sched, holidays: holidays, server: server}
}

// refresh refetches the visible week and, when enabled, captures a fresh
// snapshot of the week page.
func (a *app) refresh(ctx context.Context) {
	a.sched.Invalidate()
	if err := a.sched.Refresh(ctx, a.sched.Week()); err != nil && !errors.Is(err, schedule.ErrSuperseded) {
		appLog.Error("scheduled refresh failed", err)
		return
	}
	appLog.Info("scheduled refresh done", "events", a.sched.Cache().Len())
	if a.conf.Snapshot.Enabled {
		a.snapshot(ctx)
	}
}

func (a *app) refreshHolidays(ctx context.Context) {
	if a.holidays == nil {
		return
	}
	today := a.sched.Now().In(a.loc).Format(model.DateLayout)
	if err := a.holidays.Refresh(ctx, model.AddDays(today, -30), model.AddDays(today, holidayHorizon)); err != nil {
		appLog.Error("holiday refresh incomplete", err)
	}
}

// snapshot renders /week through headless Chromium into StateDir.
func (a *app) snapshot(ctx context.Context) {
	opts := capture.Options{
		URL:    "http://" + loopback(a.conf.Listen) + "/week",
		Width:  a.conf.Snapshot.Width,
		Height: a.conf.Snapshot.Height,
	}
	if a.conf.BasicAuth != nil {
		opts.Username = a.conf.BasicAuth.Username
		opts.Password = a.conf.BasicAuth.Password
	}
	png, err := capture.WeekPNG(ctx, opts)
	if err != nil {
		appLog.Error("snapshot failed", err)
		return
	}
	path := filepath.Join(a.conf.StateDir, web.PreviewFile)
	if err := config.WriteFileAtomic(path, png); err != nil {
		appLog.Error("failed to write snapshot", err, "path", path)
		return
	}
	appLog.Info("snapshot written", "path", path, "bytes", len(png))
}

// runOnce serves just long enough for one refresh (and snapshot) cycle.
func (a *app) runOnce(ctx context.Context, srv *http.Server) int {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.refreshHolidays(ctx)
	a.refresh(ctx)
	a.sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil {
		appLog.Error("http server failed", err)
		return 1
	}
	return 0
}

// loopback maps a wildcard listen address to one the capture can dial.
func loopback(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tutorcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional .env file with TUTORCAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh(+snapshot) cycle and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
