package tui

import (
	"context"
	"errors"

	"chatline/internal/events"
	"chatline/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

// Result 返回 TUI 运行后的必要信息。
type Result struct {
	SessionID string
}

// Run 启动界面，并在同一个 errgroup 中运行事件路由：路由器把每个后端事件转成
// session.EventMsg 送进 Bubble Tea 的消息循环，程序退出时路由随之停止。
func Run(ctx context.Context, opts Options, sub <-chan events.Event, router *events.Router, altScreen bool) (Result, error) {
	programOptions := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if altScreen {
		programOptions = append(programOptions, tea.WithAltScreen())
	}
	model := New(opts)
	program := tea.NewProgram(model, programOptions...)

	router.SetHandlers(events.Handlers{
		ByType: map[events.Type]events.Handler{
			events.EventTurnError: func(ev events.Event) {
				if f, ok := ev.Payload.(events.TurnFailure); ok {
					tuiLog.WithField("session_id", ev.SessionID).Warnf("turn failed: %s", f.Error)
				}
				program.Send(session.EventMsg(ev))
			},
		},
		Default: func(ev events.Event) {
			program.Send(session.EventMsg(ev))
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	routeCtx, stopRouting := context.WithCancel(gctx)
	g.Go(func() error {
		err := router.Run(routeCtx, sub)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stopRouting()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{SessionID: model.SessionID()}, err
	}
	return Result{SessionID: model.SessionID()}, nil
}
