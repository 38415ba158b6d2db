// Package artifacts collects finished code blocks from a conversation,
// grouped by the user request that produced them.
package artifacts

import (
	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/fence"
)

// CodeSegment is one closed code block from an assistant reply
type CodeSegment struct {
	Language string `json:"language"`
	Content  string `json:"content"`
	Name     string `json:"name"`
}

// CodeRequestGroup holds the code produced in answer to one user message
type CodeRequestGroup struct {
	UserMessage string        `json:"userMessage"`
	Codes       []CodeSegment `json:"codes"`
}

// Extract rebuilds the request groups from the full message history.
// Groups without code are dropped. Error replies and two-step replies that
// have not reached their final phase contribute nothing.
func Extract(messages []chat.Message) []CodeRequestGroup {
	var (
		groups  []CodeRequestGroup
		pending *CodeRequestGroup
	)

	flush := func() {
		if pending != nil && len(pending.Codes) > 0 {
			nameCodes(pending.Codes)
			groups = append(groups, *pending)
		}
		pending = nil
	}

	for _, msg := range messages {
		if msg.IsUser() {
			flush()
			pending = &CodeRequestGroup{UserMessage: msg.Content}
			continue
		}
		if pending == nil || msg.IsError {
			continue
		}
		for _, block := range fence.CompleteBlocks(msg.FinalText()) {
			pending.Codes = append(pending.Codes, CodeSegment{
				Language: block.Language,
				Content:  block.Content,
			})
		}
	}
	flush()

	return groups
}

func nameCodes(codes []CodeSegment) {
	for i := range codes {
		codes[i].Name = Name(codes[i].Language, codes[i].Content, i+1)
	}
}
