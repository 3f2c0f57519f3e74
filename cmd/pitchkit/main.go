package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/pitchkit/pitchkit/internal/api"
	"github.com/pitchkit/pitchkit/internal/capture"
	appcfg "github.com/pitchkit/pitchkit/internal/config"
	"github.com/pitchkit/pitchkit/internal/rounds"
	"github.com/pitchkit/pitchkit/internal/session"
	"github.com/pitchkit/pitchkit/internal/upload"
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "submit":
		runSubmit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "summarize":
		runSummarize(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  pitchkit submit <video> [-deck file] [-elapsed duration] [-config file]
  pitchkit status <job-id> [-config file]
  pitchkit summarize <job-id> [-config file]`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	deckPath := fs.String("deck", "", "slide deck to attach (.pdf, .ppt, .pptx)")
	elapsed := fs.Duration("elapsed", time.Minute, "recorded duration of the video")
	cfgPath := fs.String("config", "", "config file path")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	videoPath := fs.Arg(0)

	cfg, err := appcfg.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Control calls get the flat request timeout; upload requests carry
	// hundreds of MB and are bounded by context instead.
	ctl := api.New(cfg.Service.BaseURL)
	uploadClient := api.NewWithHTTPClient(cfg.Service.BaseURL, &http.Client{})

	// Fail fast before touching the (possibly large) video.
	if _, err := ctl.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "service at %s is unreachable: %v\n", cfg.Service.BaseURL, err)
		os.Exit(1)
	}

	var resume *upload.ResumeStore
	if cfg.Storage.DatabasePath != "" {
		resume, err = upload.NewResumeStore(cfg.Storage.DatabasePath)
		if err != nil {
			logger.Warn("resume store unavailable, continuing without", "err", err)
		} else {
			defer func() { _ = resume.Close() }()
		}
	}

	var transports []upload.Transport
	switch cfg.Upload.Strategy {
	case "stream":
		transports = append(transports, upload.NewStreamTransport(logger, uploadClient))
	default:
		transports = append(transports,
			upload.NewDirectTransport(logger, uploadClient, cfg.Upload.Attempts, cfg.Upload.Backoff),
			upload.NewChunkedTransport(logger, uploadClient, int64(cfg.Upload.ChunkSize), cfg.Upload.Attempts, cfg.Upload.Backoff, resume),
		)
	}
	coord := upload.NewCoordinator(logger, ctl, transports...)

	orch := rounds.New(logger, ctl, cfg.Session.PollTimeout, cfg.Session.PollInterval)
	sess := session.New(logger, ctl, coord, orch, session.Options{
		MinDuration:  cfg.Session.MinDuration,
		PollTimeout:  cfg.Session.PollTimeout,
		PollInterval: cfg.Session.PollInterval,
	})

	rec, err := capture.FromFile(videoPath, *elapsed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = rec.Close() }()

	var deck *api.DeckFile
	if *deckPath != "" {
		f, err := os.Open(*deckPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open deck:", err)
			os.Exit(1)
		}
		deck, err = api.NewDeckFile(*deckPath, "", f, int64(cfg.Upload.MaxDeckSize))
		_ = f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "deck:", err)
			os.Exit(1)
		}
	}

	if err := sess.StartRecording(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("submitting recording",
		"video", videoPath, "size", humanize.Bytes(uint64(rec.Size)), "elapsed", rec.Elapsed)

	stopProgress := watchProgress(sess)
	err = sess.FinishRecording(ctx, rec, deck)
	stopProgress()

	snap := sess.Snapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nsubmission failed: %v\n", err)
		if snap.Job != nil {
			fmt.Fprintf(os.Stderr, "last status: %s, %d%%\n", snap.Job.Status, snap.Job.Progress)
		}
		printPartial(snap)
		os.Exit(1)
	}

	printResult(snap)
}

// watchProgress renders a live progress line while the pipeline runs.
// Only a terminal gets the in-place line; otherwise the structured logs
// already tell the story.
func watchProgress(sess *session.Session) (stop func()) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Print("\r\033[K")
				return
			case <-ticker.C:
				snap := sess.Snapshot()
				fmt.Printf("\r\033[K[%s] %d%%", snap.Stage, snap.DisplayedProgress)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func printResult(snap session.Snapshot) {
	fmt.Printf("job %s complete\n\n", snap.JobID)
	if snap.Transcript != nil {
		fmt.Println("transcript:")
		fmt.Println(" ", snap.Transcript.FullText)
		fmt.Println()
	}
	if snap.Feedback != nil {
		for i, payload := range snap.Feedback.Rounds {
			fmt.Printf("round %d:\n", i+1)
			printPayload(payload)
		}
	}
}

func printPartial(snap session.Snapshot) {
	if snap.Transcript != nil {
		fmt.Println("transcript (partial result):")
		fmt.Println(" ", snap.Transcript.FullText)
	}
	if snap.Feedback == nil {
		return
	}
	for i, payload := range snap.Feedback.Rounds {
		if payload == nil {
			continue
		}
		fmt.Printf("round %d (partial result):\n", i+1)
		printPayload(payload)
	}
}

func printPayload(payload map[string]any) {
	b, err := json.MarshalIndent(payload, "  ", "  ")
	if err != nil {
		fmt.Println("  (unrenderable payload)")
		return
	}
	fmt.Println(" ", string(b))
}

func runSummarize(args []string) {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	jobID := fs.Arg(0)

	cfg, err := appcfg.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.RequestTimeout)
	defer cancel()

	resp, err := api.New(cfg.Service.BaseURL).Summarize(ctx, jobID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("summarization requested for job %s (status: %s)\n", resp.JobID, resp.Status)
	fmt.Println("run `pitchkit status` to see the summary once it settles")
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	jobID := fs.Arg(0)

	cfg, err := appcfg.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.RequestTimeout)
	defer cancel()

	job, err := api.New(cfg.Service.BaseURL).GetJob(ctx, jobID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("job %s: %s (%d%%)\n", job.JobID, job.Status, job.Progress)
	if job.Error != nil {
		fmt.Println("error:", *job.Error)
	}
	for n := 1; n <= 5; n++ {
		r := job.FeedbackRound(n)
		if r.Status == "" {
			continue
		}
		line := fmt.Sprintf("round %d: %s", n, r.Status)
		if r.Error != nil {
			line += " (" + *r.Error + ")"
		}
		fmt.Println(line)
	}
	if job.Summary != nil {
		fmt.Println("summary:")
		printPayload(job.Summary)
	}
	if job.SummaryError != nil {
		fmt.Println("summary error:", *job.SummaryError)
	}
}
