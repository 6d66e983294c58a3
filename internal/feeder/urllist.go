// Package feeder loads the URL list that drives a list-mode run.
package feeder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/torosent/crankbench/internal/workload"
)

// maxLineBytes bounds a single URL-list line.
const maxLineBytes = 1 << 20

// ParseURLList reads one "METHOD,URL" entry per line. The method is trimmed and
// upper-cased; every field after the first is rejoined with commas so URLs may
// contain commas. Lines with fewer than two fields are skipped.
func ParseURLList(r io.Reader) ([]workload.WorkItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var items []workload.WorkItem
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) < 2 {
			continue
		}
		items = append(items, workload.WorkItem{
			Method: strings.ToUpper(strings.TrimSpace(fields[0])),
			URL:    strings.TrimSpace(strings.Join(fields[1:], ",")),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read URL list: %w", err)
	}
	return items, nil
}

// LoadURLList opens path and parses it. An empty result is an error since the
// load shape cannot be determined from it.
func LoadURLList(path string) ([]workload.WorkItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open URL list: %w", err)
	}
	defer file.Close()

	items, err := ParseURLList(file)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("URL list %s has no entries", path)
	}
	return items, nil
}
