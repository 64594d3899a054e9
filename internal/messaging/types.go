package messaging

// WebhookEvent is the top-level structure of a WhatsApp Cloud API webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business account entry in the webhook payload.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries the messages for one phone number.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the inbound messages and delivery statuses.
type ChangeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         ChangeMetadata  `json:"metadata"`
	Messages         []InboundWire   `json:"messages"`
	Statuses         []StatusWire    `json:"statuses,omitempty"`
	Contacts         []ContactWire   `json:"contacts,omitempty"`
	Errors           []APIErrorEntry `json:"errors,omitempty"`
}

// ChangeMetadata identifies the receiving business number.
type ChangeMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// ContactWire is the sender profile attached to inbound messages.
type ContactWire struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// StatusWire is a delivery receipt. Receipts are ignored.
type StatusWire struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// InboundWire is a single inbound message.
type InboundWire struct {
	From        string           `json:"from"`
	ID          string           `json:"id"`
	Timestamp   string           `json:"timestamp"`
	Type        string           `json:"type"`
	Text        *TextBody        `json:"text,omitempty"`
	Interactive *InteractiveWire `json:"interactive,omitempty"`
	Button      *ButtonWire      `json:"button,omitempty"`
	Context     *ContextWire     `json:"context,omitempty"`
}

// TextBody is the body of a text message.
type TextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// InteractiveWire is the reply to a button or list message.
type InteractiveWire struct {
	Type        string     `json:"type"`
	ButtonReply *ReplyWire `json:"button_reply,omitempty"`
	ListReply   *ReplyWire `json:"list_reply,omitempty"`
}

// ReplyWire identifies the tapped option.
type ReplyWire struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ButtonWire is the reply to a template quick-reply button.
type ButtonWire struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// ContextWire references the message being answered.
type ContextWire struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// SendRequest is the payload posted to /{phone-number-id}/messages.
type SendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextBody    `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
}

// Interactive is an outbound button or list message.
type Interactive struct {
	Type   string            `json:"type"`
	Body   InteractiveText   `json:"body"`
	Action InteractiveAction `json:"action"`
}

// InteractiveText is a text block inside an interactive message.
type InteractiveText struct {
	Text string `json:"text"`
}

// InteractiveAction holds either reply buttons or list sections.
type InteractiveAction struct {
	Buttons  []ReplyButton `json:"buttons,omitempty"`
	Button   string        `json:"button,omitempty"`
	Sections []ListSection `json:"sections,omitempty"`
}

// ReplyButton is one quick-reply button.
type ReplyButton struct {
	Type  string    `json:"type"`
	Reply ReplyWire `json:"reply"`
}

// ListSection groups list rows.
type ListSection struct {
	Title string      `json:"title,omitempty"`
	Rows  []ReplyWire `json:"rows"`
}

// SendResponse is the response from the Cloud API after sending a message.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Messages         []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *APIErrorEntry `json:"error,omitempty"`
}

// APIErrorEntry is an error returned by the Graph API.
type APIErrorEntry struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}
