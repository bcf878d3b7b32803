// Package formdata decodes raw multipart/form-data request bodies.
//
// The decoder walks the body sequentially from one delimiter to the next,
// where a delimiter is "--boundary" at the start of the body or
// "\r\n--boundary" afterwards. Boundary text that appears inside part content
// without a preceding CRLF is therefore kept as content, and binary payloads
// are never re-split.
package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// ParseError reports a malformed multipart body.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "multipart: " + e.Reason }

func parseErr(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// IsParseError reports whether err is a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Part is one decoded body part: either a FormField or a FilePart.
type Part interface {
	FieldName() string
	isPart()
}

// FormField is a part without a filename.
type FormField struct {
	Name  string
	Value string
}

// FilePart is a part carrying a client-supplied filename. Filename is
// untrusted and Content is kept as opaque bytes.
type FilePart struct {
	Name        string
	Filename    string
	ContentType string
	Content     []byte
}

func (f FormField) FieldName() string { return f.Name }
func (FormField) isPart()             {}
func (f FilePart) FieldName() string  { return f.Name }
func (FilePart) isPart()              {}

// Form is the result of Decode. Parts preserves body order; Fields and Files
// index the last part seen for each field name.
type Form struct {
	Parts  []Part
	Fields map[string]string
	Files  map[string]FilePart
}

func newForm() *Form {
	return &Form{Fields: map[string]string{}, Files: map[string]FilePart{}}
}

func (f *Form) add(p Part) {
	f.Parts = append(f.Parts, p)
	switch v := p.(type) {
	case FormField:
		f.Fields[v.Name] = v.Value
	case FilePart:
		f.Files[v.Name] = v
	}
}

// BoundaryFromContentType extracts the boundary parameter of a
// multipart/form-data Content-Type header.
func BoundaryFromContentType(contentType string) (string, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", parseErr("invalid content type")
	}
	if mt != "multipart/form-data" {
		return "", parseErr("content type is not multipart/form-data")
	}
	b := params["boundary"]
	if b == "" {
		return "", parseErr("missing boundary")
	}
	return b, nil
}

var (
	crlf       = []byte("\r\n")
	headerTerm = []byte("\r\n\r\n")
)

type state int

const (
	stateDelimiter state = iota
	stateHeaders
	stateContent
	stateDone
)

// Decode parses body using boundary. An empty body yields an empty Form.
func Decode(body []byte, boundary string) (*Form, error) {
	if boundary == "" {
		return nil, parseErr("missing boundary")
	}
	form := newForm()
	if len(body) == 0 {
		return form, nil
	}

	dashBoundary := []byte("--" + boundary)
	delim := append(append([]byte{}, crlf...), dashBoundary...)

	// The first delimiter may sit at offset 0 or follow a preamble.
	var pos int
	if bytes.HasPrefix(body, dashBoundary) {
		pos = len(dashBoundary)
	} else {
		i := bytes.Index(body, delim)
		if i < 0 {
			return nil, parseErr("no delimiter found")
		}
		pos = i + len(delim)
	}

	var (
		st      = stateDelimiter
		name    string
		file    string
		ctype   string
		isFile  bool
		partErr error
	)
	for st != stateDone {
		switch st {
		case stateDelimiter:
			rest := body[pos:]
			if bytes.HasPrefix(rest, []byte("--")) {
				st = stateDone
				continue
			}
			// Skip transport padding up to the CRLF closing the delimiter line.
			eol := bytes.Index(rest, crlf)
			if eol < 0 {
				return nil, parseErr("unterminated delimiter line")
			}
			if strings.TrimRight(string(rest[:eol]), " \t") != "" {
				return nil, parseErr("garbage after delimiter")
			}
			pos += eol + len(crlf)
			st = stateHeaders

		case stateHeaders:
			rest := body[pos:]
			var block []byte
			if bytes.HasPrefix(rest, crlf) {
				// Part with no headers at all.
				block = nil
				pos += len(crlf)
			} else {
				end := bytes.Index(rest, headerTerm)
				if end < 0 {
					return nil, parseErr("unterminated part headers")
				}
				block = rest[:end]
				pos += end + len(headerTerm)
			}
			name, file, isFile, ctype, partErr = parseHeaders(block)
			if partErr != nil {
				return nil, partErr
			}
			st = stateContent

		case stateContent:
			rest := body[pos:]
			end := bytes.Index(rest, delim)
			if end < 0 {
				return nil, parseErr("missing closing delimiter")
			}
			content := rest[:end]
			if isFile {
				form.add(FilePart{
					Name:        name,
					Filename:    file,
					ContentType: ctype,
					Content:     append([]byte(nil), content...),
				})
			} else {
				form.add(FormField{Name: name, Value: toUTF8(content)})
			}
			pos += end + len(delim)
			st = stateDelimiter
		}
	}
	return form, nil
}

// parseHeaders reads a CRLF-separated header block and returns the
// Content-Disposition name and filename plus the part Content-Type.
func parseHeaders(block []byte) (name, filename string, isFile bool, contentType string, err error) {
	var disposition string
	for _, line := range strings.Split(string(block), "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "content-disposition":
			disposition = strings.TrimSpace(v)
		case "content-type":
			contentType = strings.TrimSpace(v)
		}
	}
	if disposition == "" {
		return "", "", false, "", parseErr("part without Content-Disposition")
	}
	params := dispositionParams(disposition)
	name, ok := params["name"]
	if !ok || name == "" {
		return "", "", false, "", parseErr("part without name")
	}
	filename, isFile = params["filename"]
	return name, filename, isFile, contentType, nil
}

// dispositionParams splits `form-data; name="a"; filename="b"` into a map.
// Quoted values are taken verbatim up to the closing quote so Windows paths
// like "C:\dir\a.txt" survive.
func dispositionParams(s string) map[string]string {
	out := map[string]string{}
	i := strings.IndexByte(s, ';')
	if i < 0 {
		return out
	}
	s = s[i+1:]
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t;")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " \t")
		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				val, s = s[1:], ""
			} else {
				val, s = s[1:end+1], s[end+2:]
			}
		} else {
			end := strings.IndexByte(s, ';')
			if end < 0 {
				val, s = strings.TrimSpace(s), ""
			} else {
				val, s = strings.TrimSpace(s[:end]), s[end:]
			}
		}
		if _, dup := out[key]; !dup {
			out[key] = val
		}
	}
	return out
}

func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
