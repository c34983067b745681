package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrInvalidAttachments is returned when file_attachments is not a list of ids.
var ErrInvalidAttachments = errors.New("file_attachments must be a list of file IDs")

// InlineFile is a file sent with a message as base64.
type InlineFile struct {
	Name       string `json:"name"`
	MimeType   string `json:"type"`
	Base64Data string `json:"base64Data"`
}

// Request is an inbound chat message.
type Request struct {
	Message           string       `json:"message"`
	AttachmentFileIDs []string     `json:"file_attachments"`
	Files             []InlineFile `json:"files"`
	SessionID         string       `json:"session_id"`
}

// UnmarshalJSON rejects a file_attachments value that is not a list of
// strings with ErrInvalidAttachments.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		Message         string          `json:"message"`
		FileAttachments json.RawMessage `json:"file_attachments"`
		Files           []InlineFile    `json:"files"`
		SessionID       string          `json:"session_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Request{Message: raw.Message, Files: raw.Files, SessionID: raw.SessionID}
	if len(raw.FileAttachments) > 0 && !bytes.Equal(bytes.TrimSpace(raw.FileAttachments), []byte("null")) {
		if err := json.Unmarshal(raw.FileAttachments, &r.AttachmentFileIDs); err != nil {
			return ErrInvalidAttachments
		}
	}
	return nil
}

// Response is the assistant's reply.
type Response struct {
	Type      string `json:"type"`
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}
