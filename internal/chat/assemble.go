package chat

// AppendContent 把文本/推理片段并入消息：与最后一个同类型块相邻时合并，否则新建块。
func (m *Message) AppendContent(block BlockType, text string) {
	if text == "" || (block != BlockText && block != BlockReasoning) {
		return
	}
	if n := len(m.ContentBlocks); n > 0 && m.ContentBlocks[n-1].Type == block {
		m.ContentBlocks[n-1].Text += text
	} else {
		m.ContentBlocks = append(m.ContentBlocks, ContentBlock{Type: block, Text: text})
	}
	if block == BlockText {
		m.Content += text
	}
}

// AppendTool 登记工具调用并在内容块中占位。重复 id 被忽略，返回是否新增。
func (m *Message) AppendTool(call ToolCall) bool {
	if call.ID == "" {
		return false
	}
	if _, exists := m.ToolCall(call.ID); exists {
		return false
	}
	call.Output = nil
	m.ToolCalls = append(m.ToolCalls, call)
	m.ContentBlocks = append(m.ContentBlocks, ToolBlock(call.ID))
	return true
}

// CompleteTool 写入工具输出，只写一次；工具不存在时返回 false。
func (m *Message) CompleteTool(toolID, output string) bool {
	for i := range m.ToolCalls {
		if m.ToolCalls[i].ID != toolID {
			continue
		}
		if m.ToolCalls[i].Output == nil {
			out := output
			m.ToolCalls[i].Output = &out
		}
		return true
	}
	return false
}

// Empty reports whether nothing has been streamed into the message yet.
func (m Message) Empty() bool {
	return len(m.ContentBlocks) == 0 && len(m.ToolCalls) == 0 && m.Content == ""
}
