// Package parser turns MPlayer slave-mode output into typed status signals.
//
// Output flows in two layers:
//
//	Layer 1 (Reader): PipeReader splits a stream into lines on CR or LF
//	Layer 2 (Parser): a LineParser consumes each line in order
//
// Unlike a metrics pipeline, nothing here drops lines. A lost EOF or
// ID_PAUSED would leave the controller's state machine out of step with
// the process, so the reader blocks when the parser is slow.
package parser

// LineParser consumes one line of process output.
type LineParser interface {
	ParseLine(line string)
}

// LineParserFunc adapts an ordinary function to LineParser.
type LineParserFunc func(line string)

// ParseLine calls f(line).
func (f LineParserFunc) ParseLine(line string) {
	f(line)
}

// NoopParser discards every line.
type NoopParser struct{}

// ParseLine does nothing.
func (NoopParser) ParseLine(string) {}

// Tee fans one line out to several parsers, in argument order.
func Tee(parsers ...LineParser) LineParser {
	return LineParserFunc(func(line string) {
		for _, p := range parsers {
			if p != nil {
				p.ParseLine(line)
			}
		}
	})
}
