package generate

import "strings"

const fence = "```"

// Extract pulls artifact text out of a model response. When the response contains a
// fenced code block, the body of the first block is returned verbatim, without the
// fence lines or info string. An unterminated block yields everything after its
// opening line. Without a fence the whole response is returned, trimmed.
func Extract(response string) string {
	start := strings.Index(response, fence)
	if start < 0 {
		return strings.TrimSpace(response)
	}
	rest := response[start+len(fence):]

	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		// Single-line block such as ```text```.
		if end := strings.Index(rest, fence); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	body := rest[nl+1:]

	end := strings.Index(body, fence)
	if end < 0 {
		return body
	}
	content := body[:end]
	// A fence on a line of its own may be indented; that indentation is not content.
	if nl := strings.LastIndexByte(content, '\n'); strings.TrimLeft(content[nl+1:], " \t") == "" {
		content = content[:nl+1]
	}
	return content
}
