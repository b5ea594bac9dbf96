package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/newsqa/internal/app"
	"github.com/xhad/newsqa/internal/tui"
	cfgPkg "github.com/xhad/newsqa/pkg/config"
	"github.com/xhad/newsqa/pkg/scraper"
	"github.com/xhad/newsqa/server"
)

// errFailed marks a command whose outcome was already printed.
var errFailed = errors.New("command failed")

func run(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "tui":
		return runTUI(ctx, cfg, logger)
	case "process":
		return runProcess(ctx, cfg, logger, args)
	case "ask":
		return runAsk(ctx, cfg, logger, args)
	case "list":
		return runList(ctx, cfg)
	case "delete":
		return runDelete(ctx, cfg, args)
	case "serve":
		return runServe(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown command %q (run with -h for usage)", command)
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// spin animates bar until the returned stop func is called.
func spin(bar *progressbar.ProgressBar) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			bar.Finish()
			fmt.Print("\r")
		})
	}
}

func runTUI(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger) error {
	c, err := setup(ctx, cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	p := tea.NewProgram(tui.New(ctx, c.app, cfg.UI.URLFields), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func runProcess(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger, urls []string) error {
	urls = scraper.FilterURLs(urls)
	if len(urls) > 0 {
		color.Blue("\nProcessing %d URL(s) into index %q\n", len(urls), cfg.Store.Key)
	}

	bar := getSpinner("📄 Loading and Processing URLs....")
	onProgress := func(url string) {
		bar.Describe(color.CyanString("📄 Loading %s", url))
	}

	c, err := setup(ctx, cfg, logger, onProgress, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	stop := spin(bar)
	out := c.app.ProcessURLs(ctx, urls)
	stop()

	return printOutcome(out)
}

func runAsk(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("usage: newsqa ask QUESTION")
	}

	bar := getSpinner("🤖 Thinking...")
	stop := func() {}
	assistant := color.New(color.FgCyan).PrintfFunc()

	var onToken func(string) error
	streamed := false
	if cfg.UI.Streaming {
		onToken = func(chunk string) error {
			if !streamed {
				stop()
				streamed = true
			}
			assistant("%s", chunk)
			return nil
		}
	}

	c, err := setup(ctx, cfg, logger, nil, onToken)
	if err != nil {
		return err
	}
	defer c.Close()

	stop = spin(bar)
	out := c.app.Ask(ctx, question)
	stop()

	if streamed && out.Answer != nil {
		fmt.Print("\n\n")
		printSources(out.Answer.Sources)
		return nil
	}
	return printOutcome(out)
}

func runList(ctx context.Context, cfg *cfgPkg.Config) error {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize index store: %w", err)
	}
	defer backend.Close()

	keys, err := backend.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indices: %w", err)
	}
	if len(keys) == 0 {
		color.Yellow("No indices found in %s store", cfg.Store.Backend)
		return nil
	}
	for _, k := range keys {
		if k == cfg.Store.Key {
			color.Green("* %s", k)
		} else {
			fmt.Printf("  %s\n", k)
		}
	}
	return nil
}

func runDelete(ctx context.Context, cfg *cfgPkg.Config, args []string) error {
	key := cfg.Store.Key
	if len(args) > 0 {
		key = args[0]
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize index store: %w", err)
	}
	defer backend.Close()

	if err := backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", key, err)
	}
	color.Green("✓ Deleted index %s", key)
	return nil
}

func runServe(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger) error {
	c, err := setup(ctx, cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	color.Blue("Starting WebSocket server on %s", cfg.Server.Addr)
	return server.NewWSServer(c.app, server.Config{
		Addr:   cfg.Server.Addr,
		Logger: logger,
	}).ListenAndServe(ctx)
}

func printOutcome(out app.Outcome) error {
	switch out.Level {
	case app.LevelWarning:
		color.Yellow("%s", out.Message)
		return nil
	case app.LevelError:
		color.Red("Error: %s", out.Message)
		if out.Detail != "" {
			color.Red("  %s", out.Detail)
		}
		return errFailed
	}

	if out.Answer == nil {
		if out.Message != "" {
			color.Green("✓ %s", out.Message)
		}
		if out.Detail != "" {
			fmt.Println("  " + out.Detail)
		}
		return nil
	}

	color.New(color.Bold).Println("\nAnswer")
	color.New(color.FgCyan).Println(out.Answer.Answer)
	fmt.Println()
	printSources(out.Answer.Sources)
	return nil
}

func printSources(sources string) {
	if sources == "" {
		return
	}
	color.New(color.Bold).Println("Sources")
	for _, src := range strings.Split(sources, "\n") {
		fmt.Println("  " + src)
	}
}
