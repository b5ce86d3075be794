package llm

import (
	"bufio"
	"bytes"
	"io"
)

// scanSSE reads a server-sent-events body line by line and invokes onData
// for each "data: " payload. Grounded on hector's pkg/llms/openai.go
// streaming loop: bufio.Reader.ReadBytes rather than bufio.Scanner, so a
// single large line never hits Scanner's 64KB token limit.
func scanSSE(body io.Reader, onData func(data []byte) (stop bool)) error {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSpace(line)
			if bytes.HasPrefix(line, []byte("data: ")) {
				if onData(line[len("data: "):]) {
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
