package timeline

import (
	"fmt"
	"strings"

	"chatline/internal/chat"
	"chatline/internal/logger"
)

var log = logger.Named("timeline")

// BuildMessage 解析父子关系后构建单条消息的时间线；没有内容块的旧消息
// 退回到扁平的工具顺序（文本在前）。
func BuildMessage(msg chat.Message) []Item {
	blocks := msg.ContentBlocks
	if len(blocks) == 0 {
		blocks = legacyBlocks(msg)
	}
	parents := ResolveParents(msg.ToolCalls, blocks)
	return Build(msg.ID, blocks, msg.ToolCalls, parents)
}

func legacyBlocks(msg chat.Message) []chat.ContentBlock {
	blocks := make([]chat.ContentBlock, 0, len(msg.ToolCalls)+1)
	if strings.TrimSpace(msg.Content) != "" {
		blocks = append(blocks, chat.TextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		blocks = append(blocks, chat.ToolBlock(call.ID))
	}
	return blocks
}

// Build 单次从左到右扫描内容块，输出有序的时间线条目。
// 纯函数：相同输入得到相同输出（包括 Key）。
func Build(msgID string, blocks []chat.ContentBlock, calls []chat.ToolCall, parents map[string]string) []Item {
	byID := make(map[string]chat.ToolCall, len(calls))
	for _, call := range calls {
		if _, dup := byID[call.ID]; !dup && call.ID != "" {
			byID[call.ID] = call
		}
	}
	children := make(map[string][]chat.ToolCall)
	listed := make(map[string]bool, len(parents))
	for _, call := range calls {
		pid, ok := parents[call.ID]
		if !ok || listed[call.ID] {
			continue
		}
		listed[call.ID] = true
		children[pid] = append(children[pid], byID[call.ID])
	}

	items := make([]Item, 0, len(blocks))
	seen := make(map[string]bool)
	suppressText := false

	for i, block := range blocks {
		switch block.Type {
		case chat.BlockReasoning:
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			items = append(items, Item{Key: blockKey(msgID, KindReasoning, i), Kind: KindReasoning, Text: text})

		case chat.BlockText:
			if suppressText || strings.TrimSpace(block.Text) == "" {
				continue
			}
			items = append(items, Item{Key: blockKey(msgID, KindText, i), Kind: KindText, Text: block.Text})

		case chat.BlockToolUse:
			id := block.ToolCallID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			call, ok := byID[id]
			if !ok {
				log.WithField("tool_id", id).Debug("content block references unknown tool call")
				items = append(items, Item{Key: toolKey(msgID, KindTool, id), Kind: KindTool, Tool: chat.ToolCall{ID: id}, Label: "unknown tool", Degraded: true})
				continue
			}

			switch {
			case chat.IsQuestionTool(call.Name):
				item := questionItem(msgID, call)
				if n := len(items); n > 0 && items[n-1].Kind == KindText {
					item.Text = items[n-1].Text
					items = items[:n-1]
				}
				items = append(items, item)
				suppressText = true
			case chat.IsPlanExitTool(call.Name):
				items = append(items, planItem(msgID, call))
			case chat.IsTodoTool(call.Name):
				// 由单独的 todo 摘要组件展示
			case parents[id] != "":
				// 随父 task 一起输出
			case chat.IsTaskTool(call.Name):
				items = append(items, taskItem(msgID, call, children))
			default:
				items = append(items, toolItem(msgID, call))
			}

		default:
			log.WithField("type", block.Type).Debug("skipping unknown content block")
		}
	}
	return items
}

func blockKey(msgID string, kind Kind, index int) string {
	return fmt.Sprintf("%s:%s:%d", msgID, kind, index)
}

func toolKey(msgID string, kind Kind, toolID string) string {
	return fmt.Sprintf("%s:%s:%s", msgID, kind, toolID)
}

func toolItem(msgID string, call chat.ToolCall) Item {
	label, degraded := ToolLabel(call)
	return Item{Key: toolKey(msgID, KindTool, call.ID), Kind: KindTool, Tool: call, Label: label, Degraded: degraded}
}

// taskItem 输出 task 及其子工具；子工具本身是 task 时递归带上它的子工具。
func taskItem(msgID string, call chat.ToolCall, children map[string][]chat.ToolCall) Item {
	label, degraded := ToolLabel(call)
	item := Item{Key: toolKey(msgID, KindTask, call.ID), Kind: KindTask, Tool: call, Label: label, Degraded: degraded}
	subs := children[call.ID]
	item.SubTools = make([]Item, 0, len(subs))
	for _, sub := range subs {
		if chat.IsTaskTool(sub.Name) {
			item.SubTools = append(item.SubTools, taskItem(msgID, sub, children))
			continue
		}
		item.SubTools = append(item.SubTools, toolItem(msgID, sub))
	}
	return item
}

func questionItem(msgID string, call chat.ToolCall) Item {
	item := Item{Key: toolKey(msgID, KindQuestion, call.ID), Kind: KindQuestion, Tool: call, Label: call.Name}
	questions, ok := ParseQuestions(call.Input)
	item.Questions = questions
	item.Degraded = !ok
	return item
}

func planItem(msgID string, call chat.ToolCall) Item {
	item := Item{Key: toolKey(msgID, KindPlan, call.ID), Kind: KindPlan, Tool: call, Label: call.Name}
	plan, ok := PlanText(call.Input)
	item.Plan = plan
	item.Degraded = !ok
	return item
}
