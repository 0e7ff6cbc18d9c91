// Command download-sst2 fetches the GLUE SST-2 splits into testdata/sst2,
// optionally also writing them as JSONL records.
package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cognicore/harmonica/pkg/harmonica/dataset"
)

const glueSST2URL = "https://dl.fbaipublicfiles.com/glue/data/SST-2.zip"

// splits are the archive members that carry labels. test.tsv has none.
var splits = []string{"train.tsv", "dev.tsv"}

func main() {
	var (
		url    = flag.String("url", glueSST2URL, "SST-2 archive URL")
		out    = flag.String("out", "testdata/sst2", "output directory")
		jsonl  = flag.Bool("jsonl", false, "also write each split as .jsonl")
		maxMiB = flag.Int64("max-mib", 64, "refuse archives larger than this")
	)
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	log.Info().Str("url", *url).Msg("Downloading SST-2")
	client := &http.Client{Timeout: 5 * time.Minute}
	data, err := download(client, *url, *maxMiB<<20)
	if err != nil {
		log.Fatal().Err(err).Msg("Download failed")
	}

	written, err := extract(data, *out, splits)
	if err != nil {
		log.Fatal().Err(err).Msg("Extract failed")
	}

	for _, p := range written {
		if !*jsonl {
			log.Info().Str("path", p).Msg("Wrote split")
			continue
		}
		n, err := convertJSONL(p)
		if err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("JSONL conversion failed")
		}
		log.Info().Str("path", p).Int("records", n).Msg("Wrote split")
	}
}

func download(client *http.Client, url string, limit int64) ([]byte, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("archive larger than %d bytes", limit)
	}
	return body, nil
}

// extract copies the named members (matched by base name) into dir and
// returns the written paths in the order of names.
func extract(data []byte, dir string, names []string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	members := make(map[string]*zip.File)
	for _, f := range zr.File {
		members[path.Base(f.Name)] = f
	}

	var written []string
	for _, name := range names {
		f, ok := members[name]
		if !ok {
			return nil, fmt.Errorf("archive has no %s", name)
		}
		dst := filepath.Join(dir, name)
		if err := copyMember(f, dst); err != nil {
			return nil, err
		}
		written = append(written, dst)
	}
	return written, nil
}

func copyMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// convertJSONL writes path's records next to it with a .jsonl extension.
func convertJSONL(tsvPath string) (int, error) {
	records, err := dataset.LoadTSV(tsvPath)
	if err != nil {
		return 0, err
	}
	dst := tsvPath[:len(tsvPath)-len(filepath.Ext(tsvPath))] + ".jsonl"
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	encoder := json.NewEncoder(out)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			out.Close()
			return 0, err
		}
	}
	return len(records), out.Close()
}
