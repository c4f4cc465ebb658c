package lab

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

// NDJSONContentType is the media type of an operation stream.
const NDJSONContentType = "application/x-ndjson"

// Outcome is the terminal state of a streamed operation.
type Outcome struct {
	Success  bool
	Message  string
	FilePath string
	Error    string
}

// Emitter receives the progress of one operation. Result is called exactly
// once and nothing follows it.
type Emitter interface {
	Log(stream, line string)
	Result(outcome Outcome)
}

// StreamWriter writes operation events as newline-delimited JSON.
// When the underlying writer is an http.ResponseWriter the content type is
// set on the first event and every event is flushed immediately.
type StreamWriter struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	started bool
	done    bool
}

func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w, enc: json.NewEncoder(w)}
}

// Started reports whether any event has been written.
func (s *StreamWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *StreamWriter) Log(stream, line string) {
	s.write(models.StreamEvent{Type: models.EventTypeLog, Stream: stream, Line: line}, false)
}

func (s *StreamWriter) Result(o Outcome) {
	success := o.Success
	s.write(models.StreamEvent{
		Type:     models.EventTypeResult,
		Success:  &success,
		Message:  o.Message,
		FilePath: o.FilePath,
		Error:    o.Error,
	}, true)
}

func (s *StreamWriter) write(ev models.StreamEvent, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		log.Debug("Dropping event after result", "type", ev.Type, "line", ev.Line)
		return
	}
	if !s.started {
		s.started = true
		if rw, ok := s.w.(http.ResponseWriter); ok {
			rw.Header().Set("Content-Type", NDJSONContentType)
			rw.Header().Set("Cache-Control", "no-cache")
			rw.Header().Set("X-Content-Type-Options", "nosniff")
			rw.WriteHeader(http.StatusOK)
		}
	}
	if final {
		s.done = true
	}
	if err := s.enc.Encode(ev); err != nil {
		log.Warn("Failed to write stream event", "type", ev.Type, "error", err)
		return
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

// lineSplitter turns remote output chunks into whole lines per stream.
// A trailing partial line is held until Flush.
type lineSplitter struct {
	em      Emitter
	pending map[remote.StreamKind]*bytes.Buffer
}

func newLineSplitter(em Emitter) *lineSplitter {
	return &lineSplitter{em: em, pending: make(map[remote.StreamKind]*bytes.Buffer)}
}

// Write is a remote.Sink. Sink calls are serialized by the executor.
func (l *lineSplitter) Write(c remote.Chunk) {
	buf, ok := l.pending[c.Stream]
	if !ok {
		buf = &bytes.Buffer{}
		l.pending[c.Stream] = buf
	}
	buf.Write(c.Data)
	for {
		i := bytes.IndexByte(buf.Bytes(), '\n')
		if i < 0 {
			return
		}
		line := string(bytes.TrimRight(buf.Next(i+1), "\r\n"))
		l.em.Log(string(c.Stream), line)
	}
}

func (l *lineSplitter) Flush() {
	for _, kind := range []remote.StreamKind{remote.Stdout, remote.Stderr} {
		if buf, ok := l.pending[kind]; ok && buf.Len() > 0 {
			l.em.Log(string(kind), buf.String())
			buf.Reset()
		}
	}
}
