package cohere

// Wire structures for the Chat API. History roles use Cohere's own
// USER/CHATBOT vocabulary rather than the usual user/assistant pair.

type chatRequest struct {
	Model       string        `json:"model"`
	Message     string        `json:"message"`
	ChatHistory []chatMessage `json:"chat_history,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// streamEvent is one NDJSON line of the response. A text-generation event
// carries only the newly generated text; the stream-end event repeats the
// full transcript in Response and must not be re-emitted.
type streamEvent struct {
	EventType    string `json:"event_type"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
	Response     *struct {
		Text string `json:"text"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
