// Package srcfacts computes aggregate source-code measures (lines of
// code, element counts, text volume) from a srcML document in a single
// streaming pass. It has no tree model and validates only what it
// needs to stay synchronized with the markup.
package srcfacts

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
)

type errorString string

func (e errorString) Error() string { return string(e) }

// Error kinds. Scan wraps each with the byte position and a message
// identifying the offending construct; match with errors.Is.
const (
	ErrEmptyInput          = errorString("empty input")
	ErrInvalidDocument     = errorString("invalid document")
	ErrInvalidName         = errorString("invalid name")
	ErrUnterminatedComment = errorString("unterminated comment")
	ErrUnterminatedCDATA   = errorString("unterminated CDATA section")
	ErrInvalidXMLDecl      = errorString("invalid XML declaration")
	ErrInvalidProcInst     = errorString("invalid processing instruction")
	ErrUnterminatedTag     = errorString("unterminated tag")
	ErrMalformedAttr       = errorString("malformed attribute")
	ErrMalformedNamespace  = errorString("incomplete namespace")
)

const (
	defaultBufferSize = 256 << 10
	minBufferSize     = 64
)

const (
	commentOpen  = "<!--"
	commentClose = "-->"
	cdataOpen    = "<![CDATA["
	cdataClose   = "]]>"
	xmlDeclOpen  = "<?xml "
	piClose      = "?>"

	// maxLookahead is the longest fixed prefix the classifier tests.
	// The scan loop keeps at least this many bytes buffered until the
	// input is exhausted, so prefix tests below never misclassify a
	// construct split across two reads.
	maxLookahead = len(cdataOpen)
)

// Scanner is a single-pass srcML metrics scanner. It owns a
// fixed-capacity byte window that is compacted and refilled from the
// reader; all parsing advances a zero-copy view over that window.
type Scanner struct {
	r       io.Reader // reader provided by the client
	n       int64     // the n read bytes counter
	options options   // scanner's options
	buf     []byte    // fixed-capacity backing array for the byte window
	window  []byte    // unconsumed view into buf; shrinks as constructs are consumed, regrows only via refill
	eof     bool      // the reader has reported end of input
	err     error     // last encountered error
	depth   int       // nesting depth of open elements; returning to 0 ends the document
	done    bool      // the root element has closed
	decl    bool      // an XML declaration has been accepted
	facts   Facts     // accumulated measures
}

type options struct {
	bufferSize int
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{bufferSize: defaultBufferSize}
}

// Option is a Scanner option.
type Option func(o *options)

// WithBufferSize directs the Scanner to use a byte window of this
// capacity. The window bounds the largest single construct (tag,
// comment, CDATA section) the Scanner can hold. Sizes below the
// minimum are raised to it; zero or negative sizes select the
// default of 256 KiB.
func WithBufferSize(size int) Option {
	if size <= 0 {
		size = defaultBufferSize
	}
	if size < minBufferSize {
		size = minBufferSize
	}
	return func(o *options) { o.bufferSize = size }
}

// WithTraceLogger directs the Scanner to emit a debug event for every
// recognized construct. Tracing is disabled when l is nil. Default:
// nil.
func WithTraceLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a new srcML metrics Scanner reading from r.
func New(r io.Reader, opts ...Option) *Scanner {
	s := new(Scanner)
	s.Reset(r, opts...)
	return s
}

// Reset resets the Scanner to read from r, retaining the allocated
// window when its capacity still fits the requested size.
func (s *Scanner) Reset(r io.Reader, opts ...Option) {
	s.r, s.err = r, nil
	s.n = 0
	s.eof, s.done, s.decl = false, false, false
	s.depth = 0
	s.facts = Facts{}

	s.options = defaultOptions()
	for i := range opts {
		opts[i](&s.options)
	}

	if cap(s.buf) < s.options.bufferSize {
		s.buf = make([]byte, s.options.bufferSize)
	}
	s.buf = s.buf[:s.options.bufferSize]
	s.window = s.buf[:0]
}

// Scan runs the scanner to completion and returns the finalized Facts.
// Scanning terminates the instant the root element closes; any
// already-buffered trailing bytes must be whitespace. On error the
// Facts is nil and no partial measures are reported.
func (s *Scanner) Scan() (*Facts, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := s.scan(); err != nil {
		s.err = fmt.Errorf("byte pos %d: %w", s.pos(), err)
		return nil, s.err
	}
	s.facts.TotalBytes = s.n
	return &s.facts, nil
}

// pos is the byte position of the view start within the whole stream.
func (s *Scanner) pos() int64 { return s.n - int64(len(s.window)) }

func (s *Scanner) scan() error {
	for !s.done {
		if len(s.window) < maxLookahead && !s.eof {
			if err := s.refill(); err != nil {
				return err
			}
		}
		if len(s.window) == 0 {
			if s.depth > 0 {
				return fmt.Errorf("%d unclosed elements: %w", s.depth, io.ErrUnexpectedEOF)
			}
			return ErrEmptyInput
		}
		if s.depth == 0 && isSpace(s.window[0]) {
			// whitespace outside the root carries no measures
			if err := s.skipSpace(); err != nil {
				return err
			}
			continue
		}
		if s.depth == 0 && s.window[0] != '<' {
			return fmt.Errorf("content outside root element: %w", ErrInvalidDocument)
		}

		var err error
		switch s.classify() {
		case constructEntityRef:
			err = s.scanEntityRef()
		case constructText:
			err = s.scanText()
		case constructComment:
			err = s.scanComment()
		case constructCDATA:
			err = s.scanCDATA()
		case constructXMLDecl:
			err = s.scanXMLDecl()
		case constructProcInst:
			err = s.scanProcInst()
		case constructEndTag:
			err = s.scanEndTag()
		case constructStartTag:
			err = s.scanStartTag()
		default:
			err = ErrInvalidDocument
		}
		if err != nil {
			return err
		}
	}

	for _, c := range s.window {
		if !isSpace(c) {
			return fmt.Errorf("extra content at end of document: %w", ErrInvalidDocument)
		}
	}
	return nil
}

// construct is the classification of the next lexical unit.
type construct int

const (
	constructInvalid construct = iota
	constructText
	constructEntityRef
	constructComment
	constructCDATA
	constructXMLDecl
	constructProcInst
	constructStartTag
	constructEndTag
)

// classify picks the handler for the leading bytes of the view. The
// priority order is fixed: longer '<'-prefixed openers are tested
// before shorter ones, and '<?xml ' is a declaration only before the
// root element.
func (s *Scanner) classify() construct {
	w := s.window
	switch {
	case w[0] == '&':
		return constructEntityRef
	case w[0] != '<':
		return constructText
	case hasPrefix(w, commentOpen):
		return constructComment
	case hasPrefix(w, cdataOpen):
		return constructCDATA
	case hasPrefix(w, xmlDeclOpen) && s.depth == 0:
		return constructXMLDecl
	case hasPrefix(w, "<?"):
		return constructProcInst
	case hasPrefix(w, "</"):
		return constructEndTag
	default:
		return constructStartTag
	}
}

// refill compacts the unconsumed bytes to the start of the backing
// array and reads until the window is full or the input is exhausted.
// Reads that return no bytes and no error are retried.
func (s *Scanner) refill() error {
	if s.eof {
		return nil
	}
	n := copy(s.buf, s.window)
	s.window = s.buf[:n]
	for len(s.window) < len(s.buf) {
		m, err := s.r.Read(s.buf[len(s.window):])
		s.window = s.buf[:len(s.window)+m]
		s.n += int64(m)
		if err == io.EOF {
			s.eof = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
	return nil
}

func (s *Scanner) advance(n int) { s.window = s.window[n:] }

// skipSpace consumes leading whitespace, refilling as needed, and
// stops at the first non-space byte or end of input.
func (s *Scanner) skipSpace() error {
	for {
		for len(s.window) > 0 && isSpace(s.window[0]) {
			s.advance(1)
		}
		if len(s.window) > 0 || s.eof {
			return nil
		}
		if err := s.refill(); err != nil {
			return err
		}
		if len(s.window) == 0 {
			return nil
		}
	}
}

// findTerminator locates needle in the view. When absent, one refill
// is performed and the search retried; a construct whose terminator
// still cannot be found does not fit the window and fails with kind.
func (s *Scanner) findTerminator(needle string, kind error) (int, error) {
	if i := bytes.Index(s.window, []byte(needle)); i >= 0 {
		return i, nil
	}
	if !s.eof {
		if err := s.refill(); err != nil {
			return 0, err
		}
		if i := bytes.Index(s.window, []byte(needle)); i >= 0 {
			return i, nil
		}
	}
	return 0, kind
}

// scanText consumes a run of character data containing neither '<'
// nor '&'. The run may stop at the window boundary; the remainder is
// picked up as a fresh run on the next pass, which accumulates to the
// same measures.
func (s *Scanner) scanText() error {
	end := bytes.IndexAny(s.window, "<&")
	if end < 0 {
		end = len(s.window)
	}
	run := s.window[:end]
	s.facts.TextSize += len(run)
	s.facts.LOC += bytes.Count(run, newline)
	s.advance(end)
	return nil
}

var newline = []byte{'\n'}

// scanEntityRef decodes one of &lt; &gt; &amp; or, failing a literal
// match, treats '&' as a literal ampersand. Each decode adds exactly
// one character to the text volume.
func (s *Scanner) scanEntityRef() error {
	switch {
	case hasPrefix(s.window, "&lt;"):
		s.advance(4)
	case hasPrefix(s.window, "&gt;"):
		s.advance(4)
	case hasPrefix(s.window, "&amp;"):
		s.advance(5)
	default:
		s.advance(1)
	}
	s.facts.TextSize++
	return nil
}

// scanComment discards a <!-- --> comment. Comment bodies count toward
// neither text volume nor LOC.
func (s *Scanner) scanComment() error {
	s.advance(len(commentOpen))
	end, err := s.findTerminator(commentClose, ErrUnterminatedComment)
	if err != nil {
		return err
	}
	if l := s.options.logger; l != nil {
		l.Debug("comment", slog.String("body", string(s.window[:end])))
	}
	s.advance(end + len(commentClose))
	return nil
}

// scanCDATA consumes a <![CDATA[ ]]> section. Unlike comments, the
// body is program text: it counts toward text volume and LOC.
func (s *Scanner) scanCDATA() error {
	s.advance(len(cdataOpen))
	end, err := s.findTerminator(cdataClose, ErrUnterminatedCDATA)
	if err != nil {
		return err
	}
	body := s.window[:end]
	s.facts.TextSize += len(body)
	s.facts.LOC += bytes.Count(body, newline)
	if l := s.options.logger; l != nil {
		l.Debug("cdata", slog.Int("len", len(body)))
	}
	s.advance(end + len(cdataClose))
	return nil
}

// scanXMLDecl parses <?xml version="..."?> with optional encoding and
// standalone attributes in that fixed order. The values are validated
// and traced but not retained.
func (s *Scanner) scanXMLDecl() error {
	if s.decl {
		return fmt.Errorf("repeated XML declaration: %w", ErrInvalidXMLDecl)
	}
	s.decl = true
	s.advance(len("<?xml"))
	end, err := s.findTerminator(piClose, fmt.Errorf("incomplete XML declaration: %w", ErrInvalidXMLDecl))
	if err != nil {
		return err
	}

	var version, encoding, standalone []byte
	rest := trimLeftSpace(s.window[:end])
	for i := 0; len(rest) > 0; i++ {
		var name, value []byte
		name, value, rest, err = splitDeclAttr(rest)
		if err != nil {
			return err
		}
		switch string(name) {
		case "version":
			if i != 0 {
				return fmt.Errorf("out-of-order attribute %q in XML declaration: %w", name, ErrInvalidXMLDecl)
			}
			version = value
		case "encoding":
			if i != 1 {
				return fmt.Errorf("out-of-order attribute %q in XML declaration: %w", name, ErrInvalidXMLDecl)
			}
			encoding = value
		case "standalone":
			if (i != 1 && i != 2) || standalone != nil {
				return fmt.Errorf("out-of-order attribute %q in XML declaration: %w", name, ErrInvalidXMLDecl)
			}
			standalone = value
		default:
			if i == 0 {
				return fmt.Errorf("missing required first attribute version in XML declaration: %w", ErrInvalidXMLDecl)
			}
			return fmt.Errorf("invalid attribute %q in XML declaration: %w", name, ErrInvalidXMLDecl)
		}
		rest = trimLeftSpace(rest)
	}
	if version == nil {
		return fmt.Errorf("missing required first attribute version in XML declaration: %w", ErrInvalidXMLDecl)
	}
	if l := s.options.logger; l != nil {
		l.Debug("xml declaration",
			slog.String("version", string(version)),
			slog.String("encoding", string(encoding)),
			slog.String("standalone", string(standalone)))
	}
	s.advance(end + len(piClose))
	return nil
}

// splitDeclAttr splits one name="value" pair off the front of an XML
// declaration body.
func splitDeclAttr(b []byte) (name, value, rest []byte, err error) {
	eq := bytes.IndexByte(b, '=')
	if eq < 0 {
		return nil, nil, nil, fmt.Errorf("incomplete attribute in XML declaration: %w", ErrInvalidXMLDecl)
	}
	name = b[:eq]
	b = b[eq+1:]
	if len(b) == 0 || (b[0] != '"' && b[0] != '\'') {
		return nil, nil, nil, fmt.Errorf("invalid start delimiter for attribute %q in XML declaration: %w", name, ErrInvalidXMLDecl)
	}
	quote := b[0]
	b = b[1:]
	endq := bytes.IndexByte(b, quote)
	if endq < 0 {
		return nil, nil, nil, fmt.Errorf("invalid end delimiter for attribute %q in XML declaration: %w", name, ErrInvalidXMLDecl)
	}
	return name, b[:endq], b[endq+1:], nil
}

// scanProcInst consumes an opaque <?target ...?> processing
// instruction. The target must be a nonempty name; nothing else is
// validated and nothing contributes to the measures.
func (s *Scanner) scanProcInst() error {
	s.advance(2)
	end, err := s.findTerminator(piClose, fmt.Errorf("unterminated processing instruction: %w", ErrInvalidProcInst))
	if err != nil {
		return err
	}
	body := s.window[:end]
	n := nameLen(body)
	if n == 0 {
		return fmt.Errorf("missing processing instruction target: %w", ErrInvalidProcInst)
	}
	if l := s.options.logger; l != nil {
		l.Debug("processing instruction",
			slog.String("target", string(body[:n])),
			slog.String("data", string(body[n:])))
	}
	s.advance(end + len(piClose))
	return nil
}

// scanStartTag parses an element start tag: the qualified name, then
// attribute and namespace items separated by mandatory whitespace,
// closed by '>' or '/>'. Accepting '>' opens the element; '/>' leaves
// the depth unchanged, and a self-closing root ends the document.
func (s *Scanner) scanStartTag() error {
	s.advance(1)
	name, err := s.scanName()
	if err != nil {
		return fmt.Errorf("start tag: %w", err)
	}
	s.countElement(name.Local)
	if l := s.options.logger; l != nil {
		l.Debug("start tag",
			slog.String("prefix", string(name.Prefix)),
			slog.String("local", string(name.Local)))
	}

	for {
		// each item independently ensures its lookahead is buffered;
		// an attribute list may span refills on its own. The refill
		// comes first so a separator space sitting just past the
		// window boundary is seen before it is tested for.
		if len(s.window) < maxLookahead && !s.eof {
			if err := s.refill(); err != nil {
				return err
			}
		}
		sawSpace := len(s.window) > 0 && isSpace(s.window[0])
		if sawSpace {
			if err := s.skipSpace(); err != nil {
				return err
			}
			if len(s.window) < maxLookahead && !s.eof {
				if err := s.refill(); err != nil {
					return err
				}
			}
		}
		if len(s.window) == 0 {
			return fmt.Errorf("start tag: %w", ErrUnterminatedTag)
		}
		switch {
		case s.window[0] == '>':
			s.advance(1)
			s.depth++
			return nil
		case hasPrefix(s.window, "/>"):
			s.advance(2)
			if s.depth == 0 {
				// self-closing root: the document is this one tag
				s.done = true
			}
			return nil
		case s.window[0] == '/':
			return fmt.Errorf("start tag: %w", ErrUnterminatedTag)
		}
		if !sawSpace {
			return fmt.Errorf("missing whitespace before attribute: %w", ErrMalformedAttr)
		}
		if s.isNamespaceDecl() {
			if err := s.scanNamespace(); err != nil {
				return err
			}
			continue
		}
		if err := s.scanAttr(); err != nil {
			return err
		}
	}
}

// scanEndTag parses </name>. The name uses the same grammar as start
// tags but is never matched against the opening tag; the bare depth
// counter alone tracks nesting. Closing the root ends the document.
func (s *Scanner) scanEndTag() error {
	s.advance(2)
	name, err := s.scanName()
	if err != nil {
		return fmt.Errorf("end tag: %w", err)
	}
	if l := s.options.logger; l != nil {
		l.Debug("end tag",
			slog.String("prefix", string(name.Prefix)),
			slog.String("local", string(name.Local)))
	}
	if err := s.skipSpace(); err != nil {
		return err
	}
	if len(s.window) == 0 || s.window[0] != '>' {
		return fmt.Errorf("end tag: %w", ErrUnterminatedTag)
	}
	s.advance(1)
	if s.depth == 0 {
		return fmt.Errorf("end tag outside root element: %w", ErrInvalidDocument)
	}
	s.depth--
	if s.depth == 0 {
		s.done = true
	}
	return nil
}

// isNamespaceDecl reports whether the view starts a namespace
// declaration: literal "xmlns" immediately followed by ':' or '='.
func (s *Scanner) isNamespaceDecl() bool {
	return hasPrefix(s.window, "xmlns") &&
		len(s.window) > 5 && (s.window[5] == ':' || s.window[5] == '=')
}

// scanNamespace parses xmlns="uri" or xmlns:prefix="uri". Namespace
// declarations are traced but contribute nothing to the measures.
func (s *Scanner) scanNamespace() error {
	s.advance(len("xmlns"))
	var prefix string
	if s.window[0] == ':' {
		s.advance(1)
		n := nameLen(s.window)
		if n == len(s.window) && !s.eof {
			if err := s.refill(); err != nil {
				return err
			}
			n = nameLen(s.window)
		}
		if n == 0 {
			return fmt.Errorf("missing namespace prefix: %w", ErrMalformedNamespace)
		}
		prefix = string(s.window[:n])
		s.advance(n)
	}
	if err := s.skipSpace(); err != nil {
		return err
	}
	if len(s.window) == 0 || s.window[0] != '=' {
		return fmt.Errorf("namespace missing '=': %w", ErrMalformedNamespace)
	}
	s.advance(1)
	uri, err := s.scanQuotedValue(fmt.Errorf("namespace missing delimiter: %w", ErrMalformedNamespace))
	if err != nil {
		return err
	}
	if l := s.options.logger; l != nil {
		l.Debug("namespace", slog.String("prefix", prefix), slog.String("uri", string(uri)))
	}
	return nil
}

// scanAttr parses one name="value" attribute. An attribute whose local
// name is "url" overwrites the document identifier; later occurrences
// anywhere in the document win unconditionally.
func (s *Scanner) scanAttr() error {
	name, err := s.scanName()
	if err != nil {
		return fmt.Errorf("attribute: %w", err)
	}
	isURL := string(name.Local) == "url"
	var traceName string
	if s.options.logger != nil {
		traceName = string(name.Local)
	}
	if err := s.skipSpace(); err != nil {
		return err
	}
	if len(s.window) == 0 || s.window[0] != '=' {
		return fmt.Errorf("attribute missing '=': %w", ErrMalformedAttr)
	}
	s.advance(1)
	value, err := s.scanQuotedValue(fmt.Errorf("attribute missing delimiter: %w", ErrMalformedAttr))
	if err != nil {
		return err
	}
	if isURL {
		s.facts.URL = string(value)
	}
	if l := s.options.logger; l != nil {
		l.Debug("attribute", slog.String("local", traceName), slog.String("value", string(value)))
	}
	return nil
}

// scanQuotedValue consumes a quote-delimited value after optional
// whitespace. The value must fit the window; one refill is attempted
// before the missing close quote fails with kind.
func (s *Scanner) scanQuotedValue(kind error) ([]byte, error) {
	if err := s.skipSpace(); err != nil {
		return nil, err
	}
	if len(s.window) == 0 || (s.window[0] != '"' && s.window[0] != '\'') {
		return nil, kind
	}
	quote := s.window[0]
	s.advance(1)
	end := bytes.IndexByte(s.window, quote)
	if end < 0 && !s.eof {
		if err := s.refill(); err != nil {
			return nil, err
		}
		end = bytes.IndexByte(s.window, quote)
	}
	if end < 0 {
		return nil, kind
	}
	value := s.window[:end]
	s.advance(end + 1)
	return value, nil
}

// scanName consumes a qualified name from the start of the view,
// refilling until the byte terminating the name is in view so a name
// split across two reads is reassembled before being trusted. The
// returned slices point into the window and are only valid until the
// next refill.
func (s *Scanner) scanName() (Name, error) {
	for {
		k := qnameLen(s.window)
		complete := k < len(s.window) && !(s.window[k] == ':' && k+1 == len(s.window))
		if complete || s.eof {
			break
		}
		before := len(s.window)
		if err := s.refill(); err != nil {
			return Name{}, err
		}
		if !s.eof && len(s.window) == before {
			// name fills the whole window
			return Name{}, fmt.Errorf("name exceeds buffer capacity: %w", ErrUnterminatedTag)
		}
	}
	if len(s.window) == 0 {
		return Name{}, ErrUnterminatedTag
	}
	if s.window[0] == ':' {
		return Name{}, fmt.Errorf("name begins with ':': %w", ErrInvalidName)
	}
	n := nameLen(s.window)
	if n == 0 {
		return Name{}, fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	if n < len(s.window) && s.window[n] == ':' {
		m := nameLen(s.window[n+1:])
		if m == 0 {
			return Name{}, fmt.Errorf("empty local name after prefix %q: %w", s.window[:n], ErrInvalidName)
		}
		name := Name{Prefix: s.window[:n], Local: s.window[n+1 : n+1+m]}
		s.advance(n + 1 + m)
		return name, nil
	}
	name := Name{Local: s.window[:n]}
	s.advance(n)
	return name, nil
}

// countElement bumps the counter matching the local name. Counting
// compares only the local name, case-sensitively.
func (s *Scanner) countElement(local []byte) {
	switch string(local) {
	case "expr":
		s.facts.ExprCount++
	case "decl":
		s.facts.DeclCount++
	case "comment":
		s.facts.CommentCount++
	case "function":
		s.facts.FunctionCount++
	case "unit":
		s.facts.UnitCount++
	case "class":
		s.facts.ClassCount++
	}
}

// hasPrefix reports whether b begins with prefix without ever reading
// past the valid bytes.
func hasPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == prefix
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\n', '\t', '\r', '\v', '\f':
		return true
	}
	return false
}

func trimLeftSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	return b
}
