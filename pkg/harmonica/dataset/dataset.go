// Package dataset loads the labelled sentences a run explains.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

// Record is one labelled sentence.
type Record struct {
	Sentence string `csv:"sentence" json:"sentence"`
	Label    int    `csv:"label" json:"label"`
}

// Dataset gives index-addressable access to records.
type Dataset interface {
	Len() int
	At(i int) Record
}

// Records is an in-memory Dataset.
type Records []Record

func (r Records) Len() int        { return len(r) }
func (r Records) At(i int) Record { return r[i] }

// LoadTSV reads a tab-separated file with a "sentence<TAB>label" header,
// the layout of the GLUE SST-2 splits.
func LoadTSV(path string) (Records, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.Comma = '\t'
	reader.LazyQuotes = true

	var records Records
	if err := gocsv.UnmarshalCSV(reader, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range records {
		records[i].Sentence = StripMarkup(records[i].Sentence)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records found in %s", path)
	}
	return records, nil
}

// LoadJSONL reads one JSON record per line, skipping malformed lines.
func LoadJSONL(path string) (Records, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var records Records
	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Warn().Err(err).Str("path", path).Int("line", i+1).Msg("skipping malformed record")
			continue
		}
		rec.Sentence = StripMarkup(rec.Sentence)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no valid records found in %s", path)
	}

	return records, nil
}

// Load picks the loader from the file extension: .jsonl/.json use
// LoadJSONL, everything else LoadTSV.
func Load(path string) (Records, error) {
	switch {
	case strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".json"):
		return LoadJSONL(path)
	default:
		return LoadTSV(path)
	}
}
