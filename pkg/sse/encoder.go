package sse

import (
	"bytes"
	"strconv"
	"strings"
)

// Encode serializes an event into one SSE wire frame. Fields are emitted in
// fixed order when present: id, event, retry, comment, then one data line per
// payload line, followed by the blank-line terminator. The payload is split
// on line breaks (\r\n and lone \r normalize to \n) so no field value can
// inject a raw line break into the frame.
//
// Encode is pure and returns a *InvalidEventError for a structurally invalid
// event: one carrying neither data nor an id nor a comment, a line break
// embedded in ID, Name, or Comment, or a negative Retry.
func Encode(event Event) ([]byte, error) {
	if event.Data == "" && event.ID == "" && event.Comment == "" {
		return nil, &InvalidEventError{Reason: "event carries no data, id, or comment"}
	}
	if containsLineBreak(event.ID) {
		return nil, &InvalidEventError{Reason: "id must not contain line breaks"}
	}
	if containsLineBreak(event.Name) {
		return nil, &InvalidEventError{Reason: "event name must not contain line breaks"}
	}
	if containsLineBreak(event.Comment) {
		return nil, &InvalidEventError{Reason: "comment must not contain line breaks"}
	}
	if event.Retry < 0 {
		return nil, &InvalidEventError{Reason: "retry must not be negative"}
	}

	var buffer bytes.Buffer
	if event.ID != "" {
		buffer.WriteString("id: ")
		buffer.WriteString(event.ID)
		buffer.WriteByte('\n')
	}
	if event.Name != "" {
		buffer.WriteString("event: ")
		buffer.WriteString(event.Name)
		buffer.WriteByte('\n')
	}
	if event.Retry > 0 {
		buffer.WriteString("retry: ")
		buffer.WriteString(strconv.Itoa(event.Retry))
		buffer.WriteByte('\n')
	}
	if event.Comment != "" {
		buffer.WriteString(": ")
		buffer.WriteString(event.Comment)
		buffer.WriteByte('\n')
	}
	if event.Data != "" {
		for _, line := range strings.Split(normalizeLineBreaks(event.Data), "\n") {
			buffer.WriteString("data: ")
			buffer.WriteString(line)
			buffer.WriteByte('\n')
		}
	}
	buffer.WriteByte('\n')

	return buffer.Bytes(), nil
}

func containsLineBreak(value string) bool {
	return strings.ContainsAny(value, "\r\n")
}

func normalizeLineBreaks(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	return strings.ReplaceAll(value, "\r", "\n")
}
