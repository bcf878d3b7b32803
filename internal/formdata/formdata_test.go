// Package formdata tests cover the sequential multipart decoder.
package formdata

import (
	"bytes"
	"mime/multipart"
	"strings"
	"testing"
)

func body(parts ...string) []byte {
	return []byte(strings.Join(parts, "\r\n"))
}

// TestDecodeFileAndField decodes one file part and one field part.
func TestDecodeFileAndField(t *testing.T) {
	b := body(
		"--XyZ",
		`Content-Disposition: form-data; name="file"; filename="a.txt"`,
		"Content-Type: text/plain",
		"",
		"hi",
		"--XyZ",
		`Content-Disposition: form-data; name="path"`,
		"",
		"/docs",
		"--XyZ--",
		"",
	)
	f, err := Decode(b, "XyZ")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fp, ok := f.Files["file"]
	if !ok {
		t.Fatalf("missing file part: %+v", f)
	}
	if fp.Filename != "a.txt" || string(fp.Content) != "hi" || fp.ContentType != "text/plain" {
		t.Fatalf("file part=%+v", fp)
	}
	if f.Fields["path"] != "/docs" {
		t.Fatalf("fields=%v", f.Fields)
	}
	if len(f.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(f.Parts))
	}
	if _, ok := f.Parts[0].(FilePart); !ok {
		t.Fatalf("part 0 should be a FilePart")
	}
	if _, ok := f.Parts[1].(FormField); !ok {
		t.Fatalf("part 1 should be a FormField")
	}
}

// TestDecodeEmptyBody returns an empty form instead of an error.
func TestDecodeEmptyBody(t *testing.T) {
	f, err := Decode(nil, "b")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.Parts) != 0 || len(f.Fields) != 0 || len(f.Files) != 0 {
		t.Fatalf("expected empty form, got %+v", f)
	}
}

// TestDecodeMissingBoundary rejects an empty boundary.
func TestDecodeMissingBoundary(t *testing.T) {
	if _, err := Decode([]byte("--x\r\n"), ""); !IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

// TestDecodeBoundaryInsideContent keeps boundary-like bytes that are not delimiters.
func TestDecodeBoundaryInsideContent(t *testing.T) {
	payload := "left--B0undary right\n--B0undary\x00\xff tail"
	b := body(
		"--B0undary",
		`Content-Disposition: form-data; name="file"; filename="blob.bin"`,
		"",
		payload,
		"--B0undary--",
	)
	f, err := Decode(b, "B0undary")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := string(f.Files["file"].Content); got != payload {
		t.Fatalf("content=%q want %q", got, payload)
	}
}

// TestDecodeBinaryRoundTrip matches the stdlib writer byte for byte.
func TestDecodeBinaryRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	data = append(data, []byte("\r\n\r\n--")...)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("path", "/x"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	fw, err := mw.CreateFormFile("file", "data.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	boundary, err := BoundaryFromContentType(mw.FormDataContentType())
	if err != nil {
		t.Fatalf("BoundaryFromContentType: %v", err)
	}
	f, err := Decode(buf.Bytes(), boundary)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(f.Files["file"].Content, data) {
		t.Fatalf("binary content mismatch")
	}
	if f.Fields["path"] != "/x" {
		t.Fatalf("path=%q", f.Fields["path"])
	}
}

// TestDecodeInvalidUTF8Field replaces invalid sequences in form fields.
func TestDecodeInvalidUTF8Field(t *testing.T) {
	b := body(
		"--b",
		`Content-Disposition: form-data; name="note"`,
		"",
		"ok\xffok",
		"--b--",
	)
	f, err := Decode(b, "b")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Fields["note"] != "ok\uFFFDok" {
		t.Fatalf("note=%q", f.Fields["note"])
	}
}

// TestDecodeWindowsFilename keeps backslashes in quoted filenames.
func TestDecodeWindowsFilename(t *testing.T) {
	b := body(
		"--b",
		`content-disposition: form-data; name="file"; filename="C:\Users\me\a.txt"`,
		"",
		"x",
		"--b--",
	)
	f, err := Decode(b, "b")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Files["file"].Filename != `C:\Users\me\a.txt` {
		t.Fatalf("filename=%q", f.Files["file"].Filename)
	}
}

// TestDecodeMalformed reports ParseError for broken bodies.
func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"no delimiter":    []byte("just some bytes"),
		"no header end":   body("--b", `Content-Disposition: form-data; name="a"`),
		"no closing":      body("--b", `Content-Disposition: form-data; name="a"`, "", "value"),
		"no name":         body("--b", `Content-Disposition: form-data`, "", "v", "--b--"),
		"no disposition":  body("--b", "Content-Type: text/plain", "", "v", "--b--"),
		"delimiter noise": body("--bxx", `Content-Disposition: form-data; name="a"`, "", "v", "--b--"),
	}
	for name, b := range cases {
		if _, err := Decode(b, "b"); !IsParseError(err) {
			t.Fatalf("%s: expected ParseError, got %v", name, err)
		}
	}
}

// TestBoundaryFromContentType validates the header parameter.
func TestBoundaryFromContentType(t *testing.T) {
	b, err := BoundaryFromContentType(`multipart/form-data; boundary="abc 123"`)
	if err != nil || b != "abc 123" {
		t.Fatalf("boundary=%q err=%v", b, err)
	}
	for _, ct := range []string{"", "application/json", "multipart/form-data", "multipart/form-data; boundary="} {
		if _, err := BoundaryFromContentType(ct); !IsParseError(err) {
			t.Fatalf("%q: expected ParseError, got %v", ct, err)
		}
	}
}
