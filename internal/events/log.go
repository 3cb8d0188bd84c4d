package events

import (
	"bufio"
	"fmt"
	"io"
)

// Log is the append-only event stream for one simulation run. Records are
// written as NDJSON lines in emission order and retained in memory for the
// post-run summary aggregation.
type Log struct {
	w       *bufio.Writer
	records []Record
}

// NewLog creates an event log writing to w. A nil writer keeps records in
// memory only (used by tests and batch runs that discard the NDJSON file).
func NewLog(w io.Writer) *Log {
	l := &Log{}
	if w != nil {
		l.w = bufio.NewWriterSize(w, 64*1024)
	}
	return l
}

// Emit appends a record and writes its NDJSON line.
func (l *Log) Emit(day int, p Payload) error {
	rec := Record{Day: day, Payload: p}
	l.records = append(l.records, rec)
	if l.w == nil {
		return nil
	}
	line, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", p.EventName(), err)
	}
	if _, err := l.w.Write(line); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	return nil
}

// Records returns every record emitted so far, in emission order.
func (l *Log) Records() []Record {
	return l.records
}

// Len returns the number of emitted records.
func (l *Log) Len() int {
	return len(l.records)
}

// Flush drains the buffered writer. Must be called before the run's output
// file is closed.
func (l *Log) Flush() error {
	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	return nil
}
