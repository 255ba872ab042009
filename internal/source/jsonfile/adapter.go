package jsonfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docassist/docassist/internal/source"
)

// Adapter reads visits from a JSON-lines file, one source.VisitItem per line.
// Blank lines and lines starting with # are skipped.
type Adapter struct {
	path   string
	items  []source.VisitItem
	loaded bool
}

// NewAdapter creates a new JSON-lines adapter.
// Parameters:
//   - path: path to the .jsonl file.
// Returns:
//   - *Adapter: adapter that loads the file on first fetch.
func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// GetSourceID returns the source identifier with a "jsonfile:" prefix.
func (a *Adapter) GetSourceID() string {
	return "jsonfile:" + filepath.Base(a.path)
}

func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("JSON lines (%s)", a.path)
}

// FetchBatch fetches a batch of visit items from the file.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cursor: pagination cursor as an index string.
//   - limit: maximum number of items to fetch.
// Returns:
//   - []source.VisitItem: batch of visit items.
//   - string: next cursor or empty if no more items.
//   - error: non-nil if loading or parsing fails.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.VisitItem, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if !a.loaded {
		if err := a.load(); err != nil {
			return nil, "", fmt.Errorf("failed to load %s: %w", a.path, err)
		}
		a.loaded = true
	}
	return source.Page(a.items, cursor, limit)
}

func (a *Adapter) load() error {
	file, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var item source.VisitItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		if item.SourceID == "" {
			item.SourceID = fmt.Sprintf("line-%d", lineNum)
		}
		if item.Doctor.Phone == "" || item.Patient.Phone == "" {
			return fmt.Errorf("line %d: doctor.phone and patient.phone are required", lineNum)
		}
		a.items = append(a.items, item)
	}
	return scanner.Err()
}
