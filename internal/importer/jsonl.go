package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxLineSize = 16 << 20

// ReadRecords decodes one record per line. Blank lines are ignored.
func ReadRecords(r io.Reader) ([]*Record, error) {
	var out []*Record
	err := eachLine(r, func(n int, line []byte) error {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, &rec)
		return nil
	})
	return out, err
}

// ReadCrossrefWorks decodes one Crossref work object per line. Works that
// cannot be parsed are returned as errors next to the records that could.
func ReadCrossrefWorks(r io.Reader, n Normalizer) ([]*Record, []error, error) {
	var out []*Record
	var bad []error
	err := eachLine(r, func(num int, line []byte) error {
		rec, err := ParseCrossrefWork(line, n)
		if err != nil {
			bad = append(bad, fmt.Errorf("line %d: %w", num, err))
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, bad, err
}

func eachLine(r io.Reader, fn func(n int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	return nil
}

// Batch is one harvested file. Its cursor is the file name without the
// extension; cursors sort lexically in harvest order.
type Batch struct {
	Cursor string
	Path   string
}

// PendingBatches lists the .jsonl files in dir whose cursor sorts after
// cursor, oldest first.
func PendingBatches(dir, cursor string) ([]Batch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list harvest directory: %w", err)
	}
	var out []Batch
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".jsonl" {
			continue
		}
		c := strings.TrimSuffix(name, ".jsonl")
		if c > cursor {
			out = append(out, Batch{Cursor: c, Path: filepath.Join(dir, name)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cursor < out[j].Cursor })
	return out, nil
}

// Load reads the records of b.
func (b Batch) Load() ([]*Record, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", b.Path, err)
	}
	defer f.Close()
	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Path, err)
	}
	return records, nil
}
