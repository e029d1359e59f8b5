package mcpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxMessageBytes bounds a single inbound message in either framing mode.
const maxMessageBytes = 4 << 20

var errMessageTooLarge = errors.New("message exceeds size limit")

// readMessage returns the next JSON-RPC payload and whether it arrived as a
// bare JSON line rather than behind Content-Length headers.
func readMessage(r *bufio.Reader) ([]byte, bool, error) {
	line, err := skipBlankLines(r)
	if err != nil {
		return nil, false, err
	}

	if looksLikeJSON(line) {
		payload, err := readJSONLine(r, line)
		return payload, true, err
	}

	contentLength, err := readHeaders(r, line)
	if err != nil {
		return nil, false, err
	}
	if contentLength > maxMessageBytes {
		return nil, false, errMessageTooLarge
	}

	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

func skipBlankLines(r *bufio.Reader) (string, error) {
	for {
		line, err := r.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if err != nil && err != io.EOF {
				return "", err
			}
			return line, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func looksLikeJSON(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func readJSONLine(r *bufio.Reader, first string) ([]byte, error) {
	buf := bytes.NewBufferString(first)
	for {
		candidate := bytes.TrimSpace(buf.Bytes())
		if json.Valid(candidate) {
			return candidate, nil
		}
		if buf.Len() > maxMessageBytes {
			return nil, errMessageTooLarge
		}
		line, err := r.ReadString('\n')
		buf.WriteString(line)
		if err != nil {
			if err == io.EOF && json.Valid(bytes.TrimSpace(buf.Bytes())) {
				return bytes.TrimSpace(buf.Bytes()), nil
			}
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// readHeaders consumes header lines up to the blank separator, starting with
// an already read first line.
func readHeaders(r *bufio.Reader, line string) (int, error) {
	contentLength := -1
	for {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if key, value, ok := strings.Cut(trimmed, ":"); ok && strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			parsed, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || parsed < 0 {
				return 0, fmt.Errorf("invalid Content-Length: %q", strings.TrimSpace(value))
			}
			contentLength = parsed
		}

		var err error
		line, err = r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}

	if contentLength < 0 {
		return 0, fmt.Errorf("missing Content-Length header")
	}
	return contentLength, nil
}

func writeFramedMessage(w *bufio.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeJSONLineMessage(w *bufio.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
