package timeline

import (
	"strings"

	"chatline/internal/chat"
)

// ResolveParents 返回 子工具 id → 父 task id 的映射。
//
// 第一遍使用显式的 ParentToolUseID（目标必须存在且为 task 工具，且不能成环），
// 可正确处理并发交错和嵌套的 task；提问、计划与 todo 工具始终留在顶层。第二遍只处理没有显式关联的旧数据：
// 按内容块顺序维护"当前 task"游标，遇到 task 调用时设置，遇到非空文本时清空。
func ResolveParents(calls []chat.ToolCall, blocks []chat.ContentBlock) map[string]string {
	byID := make(map[string]chat.ToolCall, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			continue
		}
		if _, dup := byID[call.ID]; !dup {
			byID[call.ID] = call
		}
	}

	parents := make(map[string]string)
	for _, call := range calls {
		pid := call.ParentToolUseID
		if pid == "" || pid == call.ID || !positional(call.Name) {
			continue
		}
		if _, set := parents[call.ID]; set {
			continue
		}
		parent, ok := byID[pid]
		if !ok || !chat.IsTaskTool(parent.Name) || descends(parents, pid, call.ID) {
			continue
		}
		parents[call.ID] = parent.ID
	}

	cursor := ""
	for _, block := range blocks {
		switch block.Type {
		case chat.BlockText:
			if strings.TrimSpace(block.Text) != "" {
				cursor = ""
			}
		case chat.BlockToolUse:
			call, ok := byID[block.ToolCallID]
			if !ok {
				continue
			}
			if chat.IsTaskTool(call.Name) {
				cursor = call.ID
				continue
			}
			if cursor == "" || call.ParentToolUseID != "" || !positional(call.Name) {
				continue
			}
			if _, set := parents[call.ID]; set {
				continue
			}
			parents[call.ID] = cursor
		}
	}
	return parents
}

// descends 判断从 id 沿已解析的父链向上能否到达 ancestor，用于拒绝成环的关系。
func descends(parents map[string]string, id, ancestor string) bool {
	for steps := 0; id != "" && steps <= len(parents); steps++ {
		if id == ancestor {
			return true
		}
		id = parents[id]
	}
	return false
}

// positional 排除交互型与 todo 工具，它们总是停留在顶层。
func positional(name string) bool {
	return !chat.IsQuestionTool(name) && !chat.IsPlanExitTool(name) && !chat.IsTodoTool(name)
}
