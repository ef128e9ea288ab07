// Package events reads and writes the flat files exchanged between the
// signal processing stages: raw traces (one sample per line) and event
// tables (one event per CSV row, label in the last column).
package events

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/pkg/errors"
)

var ErrMalformedEvent = errors.New("malformed event")

func ReadEvents(r io.Reader) ([]domain.Event, error) {
	var reader = csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var result []domain.Event
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var line, _ = reader.FieldPos(0)
		if len(record) < 2 {
			return nil, errors.Wrapf(ErrMalformedEvent, "line %v: expected samples and a label", line)
		}
		var label = strings.TrimSpace(record[len(record)-1])
		if label == "" {
			return nil, errors.Wrapf(ErrMalformedEvent, "line %v: empty label", line)
		}
		var signal = make([]float64, len(record)-1)
		for i, field := range record[:len(record)-1] {
			signal[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedEvent, "line %v column %v: %v", line, i+1, err)
			}
		}
		result = append(result, domain.Event{Signal: signal, Label: label})
	}
	return result, nil
}

func WriteEvents(w io.Writer, events []domain.Event) error {
	var writer = csv.NewWriter(w)
	for _, e := range events {
		var record = make([]string, 0, len(e.Signal)+1)
		for _, x := range e.Signal {
			record = append(record, strconv.FormatFloat(x, 'g', -1, 64))
		}
		record = append(record, e.Label)
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// CheckLength verifies that every event has length samples. Zero length
// means the length of the first event.
func CheckLength(events []domain.Event, length int) error {
	if len(events) == 0 {
		return nil
	}
	if length == 0 {
		length = len(events[0].Signal)
	}
	for i, e := range events {
		if len(e.Signal) != length {
			return errors.Wrapf(ErrMalformedEvent, "row %v has %v samples, want %v", i+1, len(e.Signal), length)
		}
	}
	return nil
}

// ReadTrace reads a raw trace: one sample per line, blank lines and lines
// starting with '#' are skipped.
func ReadTrace(r io.Reader) ([]float64, error) {
	var result []float64
	var scanner = bufio.NewScanner(r)
	var lineNumber int
	for scanner.Scan() {
		lineNumber++
		var line = strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		x, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %v", lineNumber)
		}
		result = append(result, x)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
