package chat

import "strings"

// 后端约定的特殊工具名。
const (
	ToolTask       = "Task"
	ToolAgent      = "Agent"
	ToolQuestion   = "AskUserQuestion"
	ToolPlanExit   = "ExitPlanMode"
	ToolTodoUpdate = "TodoWrite"
)

// IsTaskTool 判断是否为可派生子工具的协调型 task 工具。
func IsTaskTool(name string) bool {
	switch strings.TrimSpace(name) {
	case ToolTask, ToolAgent:
		return true
	}
	return false
}

func IsQuestionTool(name string) bool {
	return strings.TrimSpace(name) == ToolQuestion
}

func IsPlanExitTool(name string) bool {
	return strings.TrimSpace(name) == ToolPlanExit
}

func IsTodoTool(name string) bool {
	return strings.TrimSpace(name) == ToolTodoUpdate
}
