package llm

import (
	"fmt"
	"strings"
)

// promptGuidelines 回答指令，固定附加在上下文之后
const promptGuidelines = `You are an AI assistant that answers questions strictly based on the provided context documents.
Guidelines:
- Be clear, concise, and accurate in your response.
- Support your answers with references to the document numbers when possible (e.g., Document 1).
- If the documents contain conflicting information, acknowledge the discrepancy and explain it if possible.
- Only use information available in the context documents. Do not speculate or make assumptions.
- If the context lacks sufficient information, clearly state that the answer cannot be determined.`

// ContextDocument 提示词中的单个上下文文档
type ContextDocument struct {
	Title   string  // 文档标题
	Content string  // 文档内容
	Score   float32 // 检索相似度得分
}

// BuildPrompt 将检索结果和问题组装成完整提示词
// 所有传入的文档都会进入上下文，编号从1开始
func BuildPrompt(documents []ContextDocument, question string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Query: %s\n\n", question))
	sb.WriteString("Retrieved Documents:\n")

	for i, doc := range documents {
		sb.WriteString(fmt.Sprintf("Document %d:\n", i+1))
		if doc.Title != "" {
			sb.WriteString(fmt.Sprintf("Title: %s\n", doc.Title))
		}
		sb.WriteString(fmt.Sprintf("Content: %s\n", doc.Content))
		sb.WriteString(fmt.Sprintf("Score: %.4f\n\n", doc.Score))
	}

	sb.WriteString(promptGuidelines)
	return sb.String()
}
