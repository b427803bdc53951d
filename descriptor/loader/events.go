// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package loader implements the streaming descriptor loader of the
// framework: a push parser driven by element-start, element-end, and
// character-data events from an EventSource, producing an immutable
// descriptor.Descriptor.
package loader

import (
	"encoding/xml"
	"io"

	"github.com/pkg/errors"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/status"
)

// Kind discriminates the three event types an EventSource can produce.
type Kind int

const (
	// EventStartElement marks the opening tag of an element.
	EventStartElement Kind = iota
	// EventEndElement marks the closing tag of an element.
	EventEndElement
	// EventCharData marks character data between elements.
	EventCharData
	// EventEOF marks the end of the stream.
	EventEOF
)

// Event is one token of the element/character-data event stream the
// loader's parser state machine is driven by.
type Event struct {
	Kind  Kind
	Name  string // element name, for Start/End events
	Attrs []descriptor.Attr
	Chars string // character data, for CharData events
}

// EventSource is the abstraction the descriptor loader is built against.
// The parser state machine never touches an XML library directly, so a
// host can substitute a different XML implementation, or even a non-XML
// descriptor format, without touching the parser states.
type EventSource interface {
	// Next returns the next event in the stream, or an error if the
	// underlying reader failed. Once the stream is exhausted without
	// error, Next returns EventEOF, and keeps returning it on every
	// later call.
	Next() (Event, error)
}

// xmlEventSource is the default EventSource, backed by the standard
// library's encoding/xml streaming decoder (see DESIGN.md for why this
// stays on the standard library). The parser itself never touches
// encoding/xml directly, only this interface, so a different backing
// tokenizer can be swapped in later without touching parser states.
type xmlEventSource struct {
	dec  *xml.Decoder
	done bool
}

// NewXMLEventSource wraps r as an EventSource using encoding/xml.
func NewXMLEventSource(r io.Reader) EventSource {
	return &xmlEventSource{dec: xml.NewDecoder(r)}
}

func (s *xmlEventSource) Next() (Event, error) {
	if s.done {
		return Event{Kind: EventEOF}, nil
	}
	tok, err := s.dec.Token()
	if err == io.EOF {
		s.done = true
		return Event{Kind: EventEOF}, nil
	}
	if err != nil {
		var serr *xml.SyntaxError
		if errors.As(err, &serr) {
			return Event{}, status.Wrap(status.Malformed, err, "malformed descriptor XML")
		}
		return Event{}, status.Wrap(status.IO, err, "reading descriptor stream")
	}
	switch t := tok.(type) {
	case xml.StartElement:
		attrs := make([]descriptor.Attr, len(t.Attr))
		for i, a := range t.Attr {
			attrs[i] = descriptor.Attr{Name: a.Name.Local, Value: a.Value}
		}
		return Event{Kind: EventStartElement, Name: t.Name.Local, Attrs: attrs}, nil
	case xml.EndElement:
		return Event{Kind: EventEndElement, Name: t.Name.Local}, nil
	case xml.CharData:
		return Event{Kind: EventCharData, Chars: string(t)}, nil
	default:
		// Comments, directives, processing instructions: skip by
		// recursing to the next token; the parser state machine never
		// sees token kinds it doesn't care about.
		return s.Next()
	}
}
