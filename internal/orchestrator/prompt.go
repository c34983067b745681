package orchestrator

import (
	"fmt"
	"strings"

	"github.com/diane-assistant/filevault/internal/formatter"
)

// Fixed reply and prompt texts.
const (
	UploadInstructionsReply = "To upload a file, please use one of these methods:\n\n" +
		"1. Click the paperclip icon in the chat input area, then select a file from your device\n" +
		"2. Drag and drop a file directly into the chat input area\n" +
		"3. Use the Upload button in the navigation bar for larger files\n\n" +
		"Once you've selected a file, you can add a message describing what you'd like to do with it before sending."

	DefaultAttachmentMessage = "Here are some files I'd like to upload"

	inlineFilesNote = "\n\nNOTE: Files were provided directly. DO NOT ask for file details or try to use the upload_file tool. DO NOT respond with instructions for uploading files."

	receivedFilesReply = "I've received your files. What would you like me to do with them?"

	filesProcessedMarker = "[FILES_ALREADY_PROCESSED]"
)

// attachment describes a file attached to the current message.
type attachment struct {
	ID             string
	Filename       string
	FileType       string
	Size           int64
	Duplicate      bool
	ReferenceCount int
}

// buildPrompt appends the attached-file context to the user's text.
func buildPrompt(message string, attached []attachment, inlineSupplied bool) string {
	var b strings.Builder
	b.WriteString(message)
	if len(attached) > 0 {
		b.WriteString("\n\n\nAttached files:\n")
		for i, a := range attached {
			fmt.Fprintf(&b, "%d. %s (%s), Size: %s, ID: %s", i+1, a.Filename, a.FileType, formatter.HumanSize(a.Size), a.ID)
			if a.Duplicate {
				fmt.Fprintf(&b, " (Duplicate - Refs: %d)", a.ReferenceCount)
			}
			b.WriteString("\n")
		}
	}
	if inlineSupplied {
		b.WriteString(inlineFilesNote)
	}
	return b.String()
}

// suppressedUploadReply acknowledges files that were already ingested when
// the model asks to upload them again.
func suppressedUploadReply(attached []attachment) string {
	if len(attached) == 0 {
		return receivedFilesReply
	}
	names := make([]string, len(attached))
	for i, a := range attached {
		names[i] = fmt.Sprintf("%s (%s)", a.Filename, a.FileType)
	}
	return fmt.Sprintf("I see you've already attached: %s. What would you like me to do with these files?", strings.Join(names, ", "))
}

// withFileSummary prefixes a text reply with a note about the attachments
// unless the model already talked about them.
func withFileSummary(text string, attached []attachment) string {
	if len(attached) == 0 {
		return text
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "file") || strings.Contains(lower, "attach") {
		return text
	}

	var b strings.Builder
	b.WriteString("I see you've attached ")
	if len(attached) == 1 {
		fmt.Fprintf(&b, "a file: %s (%s). ", attached[0].Filename, attached[0].FileType)
	} else {
		names := make([]string, 0, len(attached))
		for _, a := range attached {
			if a.Filename != "" {
				names = append(names, a.Filename)
			}
		}
		fmt.Fprintf(&b, "%d files: %s. ", len(attached), strings.Join(names, ", "))
	}
	b.WriteString("How can I help you with these files? I can assist with organizing, searching, or answering questions about them.")

	if text == "" {
		text = "How can I help you with these files?"
	}
	return b.String() + "\n\n" + text
}
