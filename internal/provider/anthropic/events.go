package anthropic

// Wire structures for the Messages API.

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamEvent is the envelope for every SSE payload. The Type discriminator
// follows the delta-event lifecycle:
//
//	message_start -> content_block_start -> content_block_delta(s) ->
//	content_block_stop -> message_delta -> message_stop
type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
