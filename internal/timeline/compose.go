package timeline

import (
	"fmt"
	"strings"

	"github.com/ashutoshrp06/agentdesk/internal/types"
)

// Compose renders the outgoing body: the trimmed text, then one block per
// attachment in queue order.
//
//	hello
//
//
//	--- File: a.txt (text/plain) ---
//	hi
func Compose(text string, attachments []types.UploadedFile) string {
	text = strings.TrimSpace(text)
	if len(attachments) == 0 {
		return text
	}

	blocks := make([]string, len(attachments))
	for i, f := range attachments {
		blocks[i] = renderAttachment(f)
	}
	files := strings.Join(blocks, "\n")

	if text == "" {
		return strings.TrimPrefix(files, "\n")
	}
	return text + "\n\n" + files
}

func renderAttachment(f types.UploadedFile) string {
	mimeType := f.Type
	if mimeType == "" {
		mimeType = "unknown"
	}

	var body string
	if f.Content != nil {
		body = *f.Content
	} else {
		body = fmt.Sprintf("[Binary file - %.2f KB]", float64(f.Size)/1024)
	}
	return fmt.Sprintf("\n--- File: %s (%s) ---\n%s", f.Name, mimeType, body)
}
