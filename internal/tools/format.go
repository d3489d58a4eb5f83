package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/types"
)

// FormatResult renders a run for the composition surface. The operator
// reviews and edits it before it is sent.
//
//	Tool command "lookup" (test): success
//	Response time: 12ms
//	```json
//	{
//	  "ok": true
//	}
//	```
func FormatResult(cmd types.ToolCommand, mode types.RunMode, res types.ExecutionResult) string {
	name := cmd.Name
	if name == "" {
		name = cmd.ID
	}

	var b strings.Builder
	status := "success"
	if !res.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "Tool command %q (%s): %s\n", name, mode, status)

	switch {
	case res.ResponseTime > 0:
		fmt.Fprintf(&b, "Response time: %dms\n", res.ResponseTime)
	case res.Duration >= time.Millisecond:
		fmt.Fprintf(&b, "Response time: %dms\n", res.Duration.Milliseconds())
	}

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "unknown error"
		}
		fmt.Fprintf(&b, "Error: %s", msg)
		return b.String()
	}

	if pretty := prettyJSON(res.Data); pretty != "" {
		b.WriteString("```json\n")
		b.WriteString(pretty)
		b.WriteString("\n```")
	}
	return strings.TrimRight(b.String(), "\n")
}

func prettyJSON(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
