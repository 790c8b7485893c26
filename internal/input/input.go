// Package input reads the list of URLs to scrape from a file.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

// ErrUnsupportedFormat is returned for file extensions that cannot be read.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Source is the parsed content of an input file.
type Source struct {
	// Name is the file's base name without extension; it names the outputs.
	Name  string
	Items []scrape.WorkItem
}

// Read loads the URLs in path. Blank entries are skipped, but indices keep
// their original row positions: the 0-based line a record starts on for
// .txt and .csv, the 0-based row for spreadsheets.
func Read(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var (
		values []string
		err    error
	)
	switch ext {
	case ".txt":
		values, err = readLines(path)
	case ".csv":
		values, err = readCSV(path)
	case ".xlsx", ".xlsm":
		values, err = readSpreadsheet(path)
	default:
		return Source{}, fmt.Errorf("%w: %q (want .txt, .csv or .xlsx)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Source{}, err
	}

	items := make([]scrape.WorkItem, 0, len(values))
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		items = append(items, scrape.WorkItem{Index: i, URL: v})
	}
	return Source{Name: name, Items: items}, nil
}

func readLines(path string) ([]string, error) {
	// #nosec G304 -- the input path is supplied by the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return lines, nil
}

func readCSV(path string) ([]string, error) {
	// #nosec G304 -- the input path is supplied by the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var values []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv input: %w", err)
		}
		// The reader skips blank lines; pad them so indices track lines.
		line, _ := reader.FieldPos(0)
		for len(values) < line-1 {
			values = append(values, "")
		}
		values = append(values, firstColumn(record))
	}
	return values, nil
}

func readSpreadsheet(path string) ([]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, firstColumn(row))
	}
	return values, nil
}

func firstColumn(record []string) string {
	if len(record) == 0 {
		return ""
	}
	return record[0]
}
