package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// eventKind is the closed set of payload shapes the stream parser
// recognizes. Anything else is eventUnrecognized and skipped, because data
// lines can arrive split across chunks or carry vendor extras.
type eventKind int

const (
	eventUnrecognized eventKind = iota
	eventContentDelta
	eventUsage
	eventDone
)

type streamEvent struct {
	kind  eventKind
	text  string
	usage Usage
}

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// chunkPayload mirrors the subset of the chat-completions stream chunk the
// engine cares about: the content fragment and the final usage totals.
type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// parseEventLine interprets one complete line from the response body.
// Lines without the event marker and malformed JSON payloads both come back
// as eventUnrecognized.
func parseEventLine(line string) streamEvent {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return streamEvent{kind: eventUnrecognized}
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return streamEvent{kind: eventDone}
	}

	var chunk chunkPayload
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return streamEvent{kind: eventUnrecognized}
	}
	if chunk.Usage != nil {
		return streamEvent{kind: eventUsage, usage: Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}}
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
		return streamEvent{kind: eventContentDelta, text: chunk.Choices[0].Delta.Content}
	}
	return streamEvent{kind: eventUnrecognized}
}

// lineBuffer accumulates raw body bytes and releases only complete lines.
// The transport hands us cumulative snapshots of arbitrary granularity, so a
// data line can arrive split across two reads; the partial tail stays
// buffered until its terminator shows up.
type lineBuffer struct {
	pending []byte
}

func (b *lineBuffer) appendChunk(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(b.pending, '\n')
		if idx < 0 {
			return lines
		}
		line := string(b.pending[:idx])
		b.pending = b.pending[idx+1:]
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
}
