package carrier

// Inbound message webhook form fields
const (
	FieldFrom       = "From"
	FieldTo         = "To"
	FieldBody       = "Body"
	FieldMessageSid = "MessageSid"
)

// Status callback form fields
const (
	FieldMessageStatus = "MessageStatus"
	FieldErrorCode     = "ErrorCode"
)

// AckContentType is the content type the carrier expects for the inbound acknowledgment
const AckContentType = "text/xml; charset=utf-8"

// Ack is the empty TwiML response: received, nothing to reply
var Ack = []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
