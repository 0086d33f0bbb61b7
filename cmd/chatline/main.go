package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatline/internal/backend"
	"chatline/internal/chat"
	"chatline/internal/config"
	"chatline/internal/events"
	"chatline/internal/history"
	"chatline/internal/instructions"
	"chatline/internal/logger"
	"chatline/internal/session"
	"chatline/internal/tui"
	"chatline/internal/window"
)

var log = logger.Named("main")

func main() {
	root, rest, err := parseRootArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse args: %v\n", err)
		os.Exit(2)
	}
	logger.Configure(root.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(rest) > 0 {
		switch rest[0] {
		case "replay":
			exitOn(replayMain(ctx, root, rest[1:], false))
			return
		case "tail":
			exitOn(replayMain(ctx, root, rest[1:], true))
			return
		case "sessions":
			exitOn(sessionsMain(ctx, root, rest[1:]))
			return
		case "config":
			exitOn(configMain(root, rest[1:]))
			return
		}
	}
	exitOn(runInteractive(ctx, root, rest))
}

func exitOn(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	fmt.Fprintf(os.Stderr, "chatline: %v\n", err)
	os.Exit(1)
}

// loadConfig 读取配置文件并依次应用 -c 覆盖项。
func loadConfig(root rootArgs, extra []string) (config.Config, error) {
	cfg, err := config.Load(root.cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg = config.ApplyKVOverrides(cfg, prependOverrides(root.overrides, extra))
	if root.logLevel == "" {
		logger.Configure(cfg.Log.Level)
	}
	return cfg, nil
}

func runInteractive(ctx context.Context, root rootArgs, args []string) error {
	fs, cli := newInteractiveFlagSet("chatline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cli.finalizePrompt(fs)

	cfg, err := loadConfig(root, cli.overrides)
	if err != nil {
		return err
	}
	// 界面占用终端，日志必须写文件
	if logFile, path, err := logger.SetupFile(cfg.Log.Path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize log file: %v\n", err)
	} else {
		defer logFile.Close()
		log.WithField("path", path).Debug("logging to file")
	}

	store, err := history.Open(cfg.Storage.Driver, cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	provider, note, err := backend.NewProvider(cfg.Backend)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if note != "" {
		log.Warn(note)
	}

	queue := events.NewQueue(256)
	defer queue.Close()
	eqLog, eqCloser := events.NewFileLogger(cfg.Log.EQPath)
	if eqCloser != nil {
		defer eqCloser.Close()
	}
	queue.SetLogger(eqLog)
	sub := queue.Subscribe()

	runner := backend.NewRunner(provider, queue, store)
	runner.SetContextBudget(cfg.Backend.ContextTokens)
	runner.SetMaxConcurrent(cfg.Backend.MaxConcurrent)
	if cfg.Backend.Instructions {
		runner.SetInstructions(instructions.Discover(cfg.Storage.Dir, ""))
	}
	states := session.NewStore(ctx, runner, store, backend.DefaultOptions(cfg.Backend))
	router := events.NewRouter(events.Handlers{})

	sess, err := pickSession(ctx, store, cli.sessionID, cli.newSession)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"session_id": sess.ID, "provider": provider.Name()}).Info("starting chatline")

	result, err := tui.Run(ctx, tui.Options{
		Store:   states,
		History: store,
		Prompts: &history.PromptLog{Path: history.DefaultPromptPath(cfg.Storage.Dir)},
		Session: sess,
		Window: window.Options{
			Size:      cfg.History.WindowSize,
			Step:      cfg.History.LoadStep,
			Threshold: cfg.History.Threshold,
			Buffer:    cfg.History.ScrollBuffer,
		},
		Backend:       provider.Name(),
		InitialPrompt: cli.prompt,
	}, sub, router, cli.altScreen)
	if err != nil {
		return fmt.Errorf("program exit: %w", err)
	}
	for _, id := range states.Sending() {
		runner.Cancel(id)
	}
	if result.SessionID != "" {
		fmt.Printf("To continue this session, run chatline -session %s\n", result.SessionID)
	}
	return nil
}

// pickSession 返回要打开的会话：显式 id、最近一次未归档的会话，或新建一个。
func pickSession(ctx context.Context, store history.Store, id string, fresh bool) (chat.Session, error) {
	if id = strings.TrimSpace(id); id != "" {
		sess, err := store.Session(ctx, id)
		if err != nil {
			return chat.Session{}, fmt.Errorf("open session %s: %w", id, err)
		}
		return sess, nil
	}
	if !fresh {
		sessions, err := store.Sessions(ctx, false)
		if err != nil {
			return chat.Session{}, fmt.Errorf("list sessions: %w", err)
		}
		if len(sessions) > 0 {
			return sessions[0], nil
		}
	}
	sess, err := store.CreateSession(ctx, "")
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}
