package message

// Formatting modes understood by the platform. An empty mode sends plain text.
const (
	ParseModePlain      = ""
	ParseModeMarkdown   = "Markdown"
	ParseModeMarkdownV2 = "MarkdownV2"
	ParseModeHTML       = "HTML"
)

// Reply is an outbound message for a single chat.
type Reply struct {
	ChatID         int64
	Text           string
	ParseMode      string
	DisablePreview bool
}

// NewReply builds a plain-text reply for chatID.
func NewReply(chatID int64, text string) Reply {
	return Reply{ChatID: chatID, Text: text}
}

// WithParseMode returns a copy of r using the given formatting mode.
func (r Reply) WithParseMode(mode string) Reply {
	r.ParseMode = mode
	return r
}

// WithoutPreview returns a copy of r with link previews disabled.
func (r Reply) WithoutPreview() Reply {
	r.DisablePreview = true
	return r
}
