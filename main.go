package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"3nt3/dog-uploader/config"
	"3nt3/dog-uploader/dogceo"
	"3nt3/dog-uploader/fakeapi"
	"3nt3/dog-uploader/journal"
	"3nt3/dog-uploader/notify"
	"3nt3/dog-uploader/pipeline"
	"3nt3/dog-uploader/storage"
)

var version = "dev"

type env struct {
	cfg *config.Config
	log *slog.Logger
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("dog-uploader failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}

func newApp(out io.Writer) *cli.App {
	e := &env{}

	return &cli.App{
		Name:    "dog-uploader",
		Usage:   "copy random dog breed images into a Yandex Disk folder",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file to load before reading the environment",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides LOG_LEVEL)",
			},
		},
		Before: e.before,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "upload one image per sub-breed of a breed",
				ArgsUsage: "<breed> [folder]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "exist-ok",
						Usage: "treat an already existing folder as created",
					},
					journalFlag(),
				},
				Action: e.run,
			},
			{
				Name:      "verify",
				Usage:     "check a folder on the disk, and its files against a breed",
				ArgsUsage: "<folder> [breed]",
				Action:    e.verify,
			},
			{
				Name:   "breeds",
				Usage:  "list the breed catalog",
				Action: e.breeds,
			},
			{
				Name:  "history",
				Usage: "show recorded runs",
				Flags: []cli.Flag{
					journalFlag(),
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of runs to show"},
					&cli.Int64Flag{Name: "run", Usage: "show the uploads of one run"},
				},
				Action: e.history,
			},
			{
				Name:  "fake",
				Usage: "serve in-memory fakes of the catalog and disk APIs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dog-addr", Value: "127.0.0.1:8081"},
					&cli.StringFlag{Name: "disk-addr", Value: "127.0.0.1:8082"},
					&cli.StringFlag{Name: "token", Usage: "accepted OAuth token (default YADISK_TOKEN or fake-token)"},
				},
				Action: e.fake,
			},
		},
	}
}

func journalFlag() cli.Flag {
	return &cli.PathFlag{
		Name:  "journal",
		Usage: "sqlite file recording runs (overrides JOURNAL_PATH)",
	}
}

func (e *env) before(c *cli.Context) error {
	cfg, err := config.Load(c.Path("env-file"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		lvl, err := config.ParseLevel(c.String("log-level"))
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}

	e.cfg = cfg
	e.log = newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(e.log)
	return nil
}

func (e *env) resolver() *dogceo.Client {
	return dogceo.New(e.cfg.DogAPIURL, e.cfg.Timeout, e.log)
}

func (e *env) disk(existOK bool) *storage.YandexDisk {
	return storage.NewYandexDisk(storage.DiskOptions{
		BaseURL: e.cfg.DiskAPIURL,
		Token:   e.cfg.DiskToken,
		Timeout: e.cfg.Timeout,
		ExistOK: existOK,
		Logger:  e.log,
	})
}

func (e *env) journalPath(c *cli.Context) string {
	if p := c.Path("journal"); p != "" {
		return p
	}
	return e.cfg.JournalPath
}

func (e *env) run(c *cli.Context) error {
	breed := strings.TrimSpace(c.Args().Get(0))
	if breed == "" {
		return cli.Exit("run: breed is required", 2)
	}
	folder := c.Args().Get(1)
	if folder == "" {
		folder = breed
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	p := pipeline.New(e.resolver(), e.disk(c.Bool("exist-ok")), e.log)
	rep, runErr := p.Run(c.Context, breed, folder)

	if path := e.journalPath(c); path != "" {
		e.record(c.Context, path, rep)
	}
	if e.cfg.TelegramEnabled() {
		e.sendSummary(c.Context, rep)
	}

	fmt.Fprint(c.App.Writer, notify.Summary(rep))

	if runErr != nil {
		return runErr
	}
	if !rep.OK() {
		return cli.Exit("", 1)
	}
	return nil
}

func (e *env) record(ctx context.Context, path string, rep pipeline.Report) {
	j, err := journal.Open(path)
	if err != nil {
		e.log.Error("error opening journal", "path", path, "error", err)
		return
	}
	defer j.Close()

	id, err := j.Record(ctx, rep)
	if err != nil {
		e.log.Error("error recording run", "path", path, "error", err)
		return
	}
	e.log.Debug("run recorded", "id", id)
}

func (e *env) sendSummary(ctx context.Context, rep pipeline.Report) {
	tg, err := notify.NewTelegram(e.cfg.TelegramToken, e.cfg.TelegramChatID)
	if err != nil {
		e.log.Warn("telegram disabled", "error", err)
		return
	}
	if err := tg.Notify(ctx, rep); err != nil {
		e.log.Warn("error sending run summary", "error", err)
	}
}

func (e *env) verify(c *cli.Context) error {
	folder := c.Args().Get(0)
	if folder == "" {
		return cli.Exit("verify: folder is required", 2)
	}
	breed := c.Args().Get(1)
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	res, err := e.disk(false).Stat(c.Context, folder)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", res.Path, res.Type)
	for _, item := range res.Items() {
		fmt.Fprintf(w, "  %s\t%s\n", item.Name, item.Type)
	}
	w.Flush()

	var subs []string
	if breed != "" {
		subs, err = e.resolver().ListSubBreeds(c.Context, breed)
		if err != nil {
			return err
		}
	}
	return pipeline.Verify(res, breed, subs)
}

func (e *env) breeds(c *cli.Context) error {
	all, err := e.resolver().ListBreeds(c.Context)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if subs := all[name]; len(subs) > 0 {
			fmt.Fprintf(c.App.Writer, "%s: %s\n", name, strings.Join(subs, ", "))
			continue
		}
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func (e *env) history(c *cli.Context) error {
	path := e.journalPath(c)
	if path == "" {
		return cli.Exit("history: no journal configured (--journal or JOURNAL_PATH)", 2)
	}

	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if id := c.Int64("run"); id != 0 {
		ups, err := j.Uploads(c.Context, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "FILE\tOK\tSOURCE\tERROR")
		for _, u := range ups {
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", u.FileName, u.OK, u.SourceURL, u.Error)
		}
		return nil
	}

	runs, err := j.Recent(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tSTARTED\tBREED\tFOLDER\tRESOLVED\tUPLOADED\tFAILED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Breed, r.Folder,
			r.Resolved, r.Uploaded, r.Failed, r.Error)
	}
	return nil
}

func (e *env) fake(c *cli.Context) error {
	token := c.String("token")
	if token == "" {
		token = e.cfg.DiskToken
	}
	if token == "" {
		token = "fake-token"
	}

	dogs := fakeapi.NewDogCEO()
	dogs.SeedDefaults()
	disk := fakeapi.NewDisk(token)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- dogs.Echo().Start(c.String("dog-addr")) }()
	go func() { errCh <- disk.Echo().Start(c.String("disk-addr")) }()

	e.log.Info("fake apis listening",
		"dog_api_url", "http://"+c.String("dog-addr")+"/api",
		"disk_api_url", "http://"+c.String("disk-addr"),
		"token", token)

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		e.log.Info("shutting down fake apis")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dogs.Echo().Shutdown(shutdownCtx); err != nil {
		e.log.Error("shutdown error", "error", err)
	}
	if err := disk.Echo().Shutdown(shutdownCtx); err != nil {
		e.log.Error("shutdown error", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
