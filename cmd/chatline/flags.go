package main

import (
	"flag"
	"strings"
)

type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// rootArgs 是所有子命令共享的全局参数。
type rootArgs struct {
	cfgPath   string
	logLevel  string
	overrides []string
}

// parseRootArgs 解析子命令之前的全局参数，遇到第一个非参数时停止。
func parseRootArgs(args []string) (rootArgs, []string, error) {
	fs := flag.NewFlagSet("chatline", flag.ContinueOnError)
	var root rootArgs
	var overrides stringSlice
	fs.StringVar(&root.cfgPath, "config", "", "Path to config file (default ~/.chatline/config.toml)")
	fs.StringVar(&root.logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides log.level")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return rootArgs{}, nil, err
	}
	root.overrides = append([]string{}, overrides...)
	return root, fs.Args(), nil
}

// interactiveArgs 是默认交互界面的参数。
type interactiveArgs struct {
	sessionID  string
	newSession bool
	prompt     string
	altScreen  bool
	overrides  stringSlice
}

func newInteractiveFlagSet(name string) (*flag.FlagSet, *interactiveArgs) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	args := &interactiveArgs{}
	fs.StringVar(&args.sessionID, "session", "", "Open the session with this id")
	fs.BoolVar(&args.newSession, "new", false, "Start a new session instead of the most recent one")
	fs.StringVar(&args.prompt, "prompt", "", "Initial prompt")
	fs.BoolVar(&args.altScreen, "alt", true, "Use the alternate screen")
	fs.Var(&args.overrides, "c", "Override config value key=value (repeatable)")
	return fs, args
}

func (i *interactiveArgs) finalizePrompt(fs *flag.FlagSet) {
	if i.prompt == "" && fs.NArg() > 0 {
		i.prompt = strings.Join(fs.Args(), " ")
	}
}

func prependOverrides(root []string, overrides []string) []string {
	merged := append([]string{}, root...)
	return append(merged, overrides...)
}
