package biz

import (
	"fmt"
	"strings"
)

// AgentTemplate 创建 Agent 时使用的角色、目标与指令。
type AgentTemplate struct {
	Role         string
	Goal         string
	Instructions string
}

// DefaultAgentTemplate 企业文档检索助手模板。
func DefaultAgentTemplate() AgentTemplate {
	return AgentTemplate{
		Role: "Enterprise document assistant",
		Goal: "Help employees quickly find and understand information in internal company documents",
		Instructions: `You are a professional enterprise document assistant that helps employees query internal documents.

Your main responsibilities:
1. Look up company policies, rules and regulations
2. Provide IT support and technical guidance
3. Answer questions about financial procedures
4. Help employees understand company processes

Answering rules:
- Answer only from information found in the knowledge base
- Give clear, well-structured answers
- Say so explicitly when the information is incomplete
- Use a friendly, professional tone

If the knowledge base contains nothing relevant, tell the user honestly. Never make up information.`,
	}
}

// Render 拼接为完整的 Agent 指令文本。
func (t AgentTemplate) Render() string {
	var sb strings.Builder
	if t.Role != "" {
		fmt.Fprintf(&sb, "Role: %s\n", t.Role)
	}
	if t.Goal != "" {
		fmt.Fprintf(&sb, "Goal: %s\n", t.Goal)
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.TrimSpace(t.Instructions))
	return sb.String()
}

// withDefaults 用默认模板填充空字段。
func (t AgentTemplate) withDefaults() AgentTemplate {
	def := DefaultAgentTemplate()
	if strings.TrimSpace(t.Role) == "" {
		t.Role = def.Role
	}
	if strings.TrimSpace(t.Goal) == "" {
		t.Goal = def.Goal
	}
	if strings.TrimSpace(t.Instructions) == "" {
		t.Instructions = def.Instructions
	}
	return t
}
