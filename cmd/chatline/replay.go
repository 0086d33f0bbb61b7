package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chatline/internal/backend"
	"chatline/internal/chat"
	"chatline/internal/events"
	"chatline/internal/history"
	"chatline/internal/logger"
	"chatline/internal/timeline"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// replayMain 把后端写出的 NDJSON 文件作为一个回合导入会话，并把事件打印到标准输出。
// follow 为 true 时（tail 子命令）持续等待新写入，直到出现结束记录。
func replayMain(ctx context.Context, root rootArgs, args []string, follow bool) error {
	name := "replay"
	if follow {
		name = "tail"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var sessionID, prompt string
	var overrides stringSlice
	fs.StringVar(&sessionID, "session", "", "Append the turn to this session (default: a new session)")
	fs.StringVar(&prompt, "prompt", "", "User text recorded for the turn")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: chatline %s [-session id] <file.ndjson>", name)
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return err
	}
	if logFile, _, err := logger.SetupFile(cfg.Log.Path); err == nil {
		defer logFile.Close()
	}
	store, err := history.Open(cfg.Storage.Driver, cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	id, err := streamFile(ctx, store, streamRequest{
		Path:      path,
		Follow:    follow,
		SessionID: sessionID,
		Prompt:    prompt,
		Options:   backend.DefaultOptions(cfg.Backend),
		EQPath:    cfg.Log.EQPath,
	}, os.Stdout)
	if id != "" {
		fmt.Fprintf(os.Stderr, "session %s\n", id)
	}
	if errors.Is(err, backend.ErrTurnCancelled) {
		return nil
	}
	return err
}

type streamRequest struct {
	Path      string
	Follow    bool
	SessionID string
	Prompt    string
	Options   chat.SendOptions
	EQPath    string
}

// streamFile 用 FileProvider 驱动一次完整回合：Runner 负责持久化，事件经队列与路由打印到 out。
func streamFile(ctx context.Context, store history.Store, req streamRequest, out io.Writer) (string, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sess, err := store.CreateSession(ctx, "replay "+filepath.Base(req.Path))
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
	} else if _, err := store.Session(ctx, sessionID); err != nil {
		return "", fmt.Errorf("open session %s: %w", sessionID, err)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = fmt.Sprintf("(replayed from %s)", filepath.Base(req.Path))
	}

	queue := events.NewQueue(64)
	if req.EQPath != "" {
		eqLog, closer := events.NewFileLogger(req.EQPath)
		if closer != nil {
			defer closer.Close()
		}
		queue.SetLogger(eqLog)
	}
	sub := queue.Subscribe()
	p := newPrinter(out)
	router := events.NewRouter(events.Handlers{Default: p.Print})
	runner := backend.NewRunner(backend.FileProvider{Path: req.Path, Follow: req.Follow}, queue, store)

	var sendErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(gctx, sub)
	})
	g.Go(func() error {
		// 队列关闭后路由读完剩余事件即退出
		defer queue.Close()
		sendErr = runner.Send(gctx, backend.SendRequest{
			SessionID: sessionID,
			TurnID:    uuid.NewString(),
			MessageID: uuid.NewString(),
			Text:      prompt,
			Options:   req.Options,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return sessionID, err
	}
	p.Flush()
	return sessionID, sendErr
}

// printer 把回合事件渲染成纯文本。
type printer struct {
	w       io.Writer
	last    chat.BlockType
	midLine bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) Print(ev events.Event) {
	switch ev.Type {
	case events.EventContentAppend:
		delta, ok := ev.Payload.(events.ContentDelta)
		if !ok || delta.Text == "" {
			return
		}
		if delta.Block != p.last {
			p.Flush()
			if delta.Block == chat.BlockReasoning {
				fmt.Fprint(p.w, "thinking: ")
			}
			p.last = delta.Block
		}
		fmt.Fprint(p.w, delta.Text)
		p.midLine = !strings.HasSuffix(delta.Text, "\n")
	case events.EventToolInvoked:
		inv, ok := ev.Payload.(events.ToolInvocation)
		if !ok {
			return
		}
		p.Flush()
		label, _ := timeline.ToolLabel(inv.Call)
		fmt.Fprintf(p.w, "● %s\n", label)
	case events.EventToolCompleted:
		res, ok := ev.Payload.(events.ToolResult)
		if !ok {
			return
		}
		p.Flush()
		first, _, _ := strings.Cut(strings.TrimSpace(res.Output), "\n")
		if first == "" {
			first = "(no output)"
		}
		if res.IsError {
			first = "error: " + first
		}
		fmt.Fprintf(p.w, "  ⎿ %s\n", first)
	case events.EventTurnError:
		p.Flush()
		msg := "turn failed"
		if f, ok := ev.Payload.(events.TurnFailure); ok && f.Error != "" {
			msg = f.Error
		}
		fmt.Fprintf(p.w, "error: %s\n", msg)
	case events.EventTurnCancelled:
		p.Flush()
		fmt.Fprintln(p.w, "(cancelled)")
	case events.EventTurnComplete:
		p.Flush()
	}
}

// Flush 结束未换行的输出，下一段内容从新行开始。
func (p *printer) Flush() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
	p.last = ""
}
