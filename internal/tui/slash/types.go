// Package slash 实现输入框里的斜杠命令弹窗：模糊匹配、选择与补全。
package slash

import "strings"

// Command 表示内置斜杠命令的标识符。
type Command string

const (
	CommandNew        Command = "new"
	CommandSessions   Command = "sessions"
	CommandArchive    Command = "archive"
	CommandMode       Command = "mode"
	CommandModel      Command = "model"
	CommandThinking   Command = "thinking"
	CommandRetry      Command = "retry"
	CommandClearQueue Command = "clear-queue"
	CommandDismiss    Command = "dismiss"
	CommandGoto       Command = "goto"
	CommandExpand     Command = "expand"
	CommandCopy       Command = "copy"
	CommandQuit       Command = "quit"
	CommandExit       Command = "exit"
)

// Item 代表弹窗中的一行条目。
type Item struct {
	Command     Command
	Description string
	// Args 描述参数形态，仅用于展示。
	Args string
	// Choices 非空时，光标越过命令名后弹窗改为补全这些取值。
	Choices []string
}

// Token 返回无前导斜杠的匹配键。
func (i Item) Token() string {
	return string(i.Command)
}

// DisplayName 返回带前缀斜杠的展示名称。
func (i Item) DisplayName() string {
	token := i.Token()
	if token == "" {
		return ""
	}
	if strings.HasPrefix(token, "/") {
		return token
	}
	return "/" + token
}

func builtinItems() []Item {
	return []Item{
		{Command: CommandNew, Description: "start a new session", Args: "[title]"},
		{Command: CommandSessions, Description: "switch session (fuzzy search)", Args: "[query]"},
		{Command: CommandArchive, Description: "archive the current session"},
		{Command: CommandMode, Description: "execution mode for next sends", Args: "plan|build|yolo", Choices: []string{"plan", "build", "yolo"}},
		{Command: CommandModel, Description: "model for next sends", Args: "<name>"},
		{Command: CommandThinking, Description: "reasoning budget", Args: "off|think|megathink|ultrathink", Choices: []string{"off", "think", "megathink", "ultrathink"}},
		{Command: CommandRetry, Description: "resend the head of the failed queue"},
		{Command: CommandClearQueue, Description: "drop queued messages"},
		{Command: CommandDismiss, Description: "dismiss the error banner"},
		{Command: CommandGoto, Description: "jump to message number", Args: "<n> [start|center|end]"},
		{Command: CommandExpand, Description: "toggle stacked steps of the last reply"},
		{Command: CommandCopy, Description: "copy the last reply to the clipboard"},
		{Command: CommandQuit, Description: "exit chatline"},
		{Command: CommandExit, Description: "exit chatline"},
	}
}
