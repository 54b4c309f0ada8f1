package parser

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
)

// PipeReader reads lines from an io.Reader (MPlayer stdout/stderr pipe)
// and feeds them, in order, to a LineParser.
//
// MPlayer redraws its status line with a bare carriage return, so lines
// are terminated by '\n', "\r\n" or '\r'. Empty lines are skipped.
type PipeReader struct {
	reader io.Reader
	parser LineParser
	done   chan struct{}

	bytesRead atomic.Int64
	linesRead atomic.Int64
	err       atomic.Value // error
}

// NewPipeReader creates a new pipe-based line source.
//
// The reader is typically cmd.StdoutPipe() or cmd.StderrPipe().
func NewPipeReader(r io.Reader, p LineParser) *PipeReader {
	if p == nil {
		p = NoopParser{}
	}
	return &PipeReader{
		reader: r,
		parser: p,
		done:   make(chan struct{}),
	}
}

// Run reads lines until EOF or a read error. It blocks while the parser
// is busy, so no line is ever dropped.
func (p *PipeReader) Run() {
	defer close(p.done)

	scanner := bufio.NewScanner(p.reader)

	const maxLineSize = 64 * 1024
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	scanner.Split(ScanTerminalLines)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1))
		if line == "" {
			continue
		}
		p.linesRead.Add(1)
		p.parser.ParseLine(line)
	}
	if err := scanner.Err(); err != nil {
		p.err.Store(err)
		// Keep draining so the writer never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, p.reader)
	}
}

// Done is closed once Run has returned.
func (p *PipeReader) Done() <-chan struct{} {
	return p.done
}

// Err returns the read error that ended Run, if any. A clean EOF is nil.
func (p *PipeReader) Err() error {
	if v := p.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Stats returns (bytesRead, linesRead).
func (p *PipeReader) Stats() (bytesRead int64, linesRead int64) {
	return p.bytesRead.Load(), p.linesRead.Load()
}

// ScanTerminalLines is a bufio.SplitFunc like bufio.ScanLines that also
// treats a lone '\r' as a line terminator. A "\r\n" pair ends one line,
// not two.
func ScanTerminalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// '\r': swallow a following '\n' if we can see it.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// Need one more byte to tell "\r" from "\r\n".
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
