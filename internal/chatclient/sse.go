package chatclient

import (
	"bufio"
	"io"
	"strings"
)

const maxEventLine = 1 << 20

// readEvents parses a text/event-stream body and calls fn once per event
// with its name and its data lines joined by "\n". Reading stops at EOF or
// at the first error fn returns.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventLine)

	var (
		event   string
		data    []string
		hasData bool
	)
	dispatch := func() error {
		defer func() {
			event, data, hasData = "", data[:0], false
		}()
		if !hasData {
			return nil
		}
		return fn(event, strings.Join(data, "\n"))
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	// A final event without its blank line still counts.
	return dispatch()
}
