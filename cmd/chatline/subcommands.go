package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"chatline/internal/config"
	"chatline/internal/history"

	"github.com/pelletier/go-toml/v2"
)

func sessionsMain(ctx context.Context, root rootArgs, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	var all bool
	var archive string
	var overrides stringSlice
	fs.BoolVar(&all, "all", false, "Include archived sessions")
	fs.StringVar(&archive, "archive", "", "Archive the session with this id")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.Storage.Driver, cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	if id := strings.TrimSpace(archive); id != "" {
		if err := store.Archive(ctx, id); err != nil {
			return fmt.Errorf("archive %s: %w", id, err)
		}
		fmt.Printf("archived %s\n", id)
		return nil
	}
	return listSessions(ctx, store, all, os.Stdout)
}

func listSessions(ctx context.Context, store history.Store, all bool, out io.Writer) error {
	sessions, err := store.Sessions(ctx, all)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tTITLE")
	for _, s := range sessions {
		title := s.Title
		if s.Archived {
			title += " (archived)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), title)
	}
	return tw.Flush()
}

// configMain 打印生效的配置；"config save" 把覆盖项写回配置文件。
func configMain(root rootArgs, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var overrides stringSlice
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return err
	}
	switch fs.Arg(0) {
	case "", "show":
		return printConfig(cfg, os.Stdout)
	case "save":
		if err := config.Save(cfg.Source, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("saved %s\n", cfg.Source)
		return nil
	case "path":
		fmt.Println(cfg.Source)
		return nil
	default:
		return fmt.Errorf("unknown config action %q (show|save|path)", fs.Arg(0))
	}
}

// printConfig 输出 TOML，凭据只显示是否已设置。
func printConfig(cfg config.Config, out io.Writer) error {
	cfg.Backend.AnthropicToken = redact(cfg.Backend.AnthropicToken)
	cfg.Backend.OpenAIToken = redact(cfg.Backend.OpenAIToken)
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# %s\n", cfg.Source)
	_, err = out.Write(data)
	return err
}

func redact(token string) string {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	return "<set>"
}
