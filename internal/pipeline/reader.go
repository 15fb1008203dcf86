package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/goccy/go-json"
)

const maxLineBytes = 1 << 20

type ReadStats struct {
	Events    int
	Malformed int
}

// ReadEvents decodes one JSON object per line and hands it to fn. Blank
// lines are ignored; lines that are not JSON objects are counted and
// skipped. It stops early when ctx is cancelled.
func ReadEvents(ctx context.Context, r io.Reader, fn func(raw map[string]interface{})) (ReadStats, error) {
	var stats ReadStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return stats, nil
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(line, &raw); err != nil || raw == nil {
			stats.Malformed++
			continue
		}

		stats.Events++
		fn(raw)
	}
	return stats, scanner.Err()
}
