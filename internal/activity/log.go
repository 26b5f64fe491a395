// Package activity is the append-only record of executed operations that
// feeds the rebalance signal and GET /log.
//
// One line per entry:
//
//	<unix seconds>,<amountA>,<amountB>,<kind>[,<counterparty>]
//
// Three-column numeric lines written before the kind column existed are
// read back with kind "legacy".
package activity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"pol-gateway/internal/domain"
)

// ParseError reports a malformed line. Line is 1-based.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("activity log line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes ParseError match domain.ErrLogParse.
func (e *ParseError) Is(target error) bool {
	return target == domain.ErrLogParse
}

// Log is a file-backed activity log. Appends from concurrent requests are
// serialized; there is no rotation or size bound.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a log at path, creating its directory if needed.
// The file itself is created on first append.
func New(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create log dir: %v", domain.ErrLogIO, err)
		}
	}
	return &Log{path: path}, nil
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes entry as a single line.
func (l *Log) Append(ctx context.Context, entry domain.ActivityEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := Format(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open: %v", domain.ErrLogIO, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: write: %v", domain.ErrLogIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", domain.ErrLogIO, err)
	}
	return nil
}

// ReadAll returns every entry in append order. A missing file is an empty log.
func (l *Log) ReadAll(ctx context.Context) ([]domain.ActivityEntry, error) {
	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Raw returns the file contents verbatim.
func (l *Log) Raw(ctx context.Context) (string, error) {
	data, err := l.read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Log) read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	data, err := os.ReadFile(l.path)
	l.mu.Unlock()

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read: %v", domain.ErrLogIO, err)
	}
	return data, nil
}

// Format renders entry as one newline-terminated line.
func Format(e domain.ActivityEntry) (string, error) {
	if !e.Kind.IsValid() || e.Kind == domain.KindLegacy {
		return "", fmt.Errorf("%w: activity kind %q", domain.ErrValidation, e.Kind)
	}
	if strings.ContainsAny(e.Counterparty, ",\r\n") {
		return "", fmt.Errorf("%w: counterparty contains a separator", domain.ErrValidation)
	}
	if !finite(e.AmountA) || !finite(e.AmountB) {
		return "", fmt.Errorf("%w: non-finite amount", domain.ErrValidation)
	}

	var b strings.Builder
	b.WriteString(strconv.FormatInt(e.Timestamp, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(e.AmountA, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(e.AmountB, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(string(e.Kind))
	if e.Counterparty != "" {
		b.WriteByte(',')
		b.WriteString(e.Counterparty)
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// Parse decodes a whole log. The first malformed line aborts with *ParseError.
func Parse(data []byte) ([]domain.ActivityEntry, error) {
	var entries []domain.ActivityEntry

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		e, err := parseLine(strings.TrimRight(sc.Text(), "\r"))
		if err != nil {
			return nil, &ParseError{Line: lineNo, Err: err}
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Line: lineNo + 1, Err: err}
	}
	return entries, nil
}

func parseLine(line string) (domain.ActivityEntry, error) {
	var e domain.ActivityEntry
	if line == "" {
		return e, errors.New("empty line")
	}

	fields := strings.Split(line, ",")
	switch len(fields) {
	case 3:
		e.Kind = domain.KindLegacy
	case 4, 5:
		kind := domain.OperationKind(fields[3])
		if !kind.IsValid() || kind == domain.KindLegacy {
			return e, fmt.Errorf("unknown kind %q", fields[3])
		}
		e.Kind = kind
		if len(fields) == 5 {
			if fields[4] == "" {
				return e, errors.New("empty counterparty")
			}
			e.Counterparty = fields[4]
		}
	default:
		return e, fmt.Errorf("expected 3 to 5 fields, got %d", len(fields))
	}

	ts, err := parseTimestamp(fields[0])
	if err != nil {
		return e, err
	}
	e.Timestamp = ts

	if e.AmountA, err = parseAmount(fields[1]); err != nil {
		return e, fmt.Errorf("amountA: %w", err)
	}
	if e.AmountB, err = parseAmount(fields[2]); err != nil {
		return e, fmt.Errorf("amountB: %w", err)
	}
	return e, nil
}

// parseTimestamp accepts integer seconds, and fractional seconds (truncated)
// as written by the earliest writers.
func parseTimestamp(s string) (int64, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) || f < 0 || f > math.MaxInt64 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return int64(f), nil
}

func parseAmount(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
