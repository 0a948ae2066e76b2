package proxy

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestReadRequest_SimpleGET(t *testing.T) {
	raw := "GET /foo/bar?x=1 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	req, err := RequestParser{}.ReadRequest(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Method != "GET" || req.Path != "/foo/bar" || req.Query == nil || *req.Query != "x=1" {
		t.Fatalf("unexpected parse: %+v", req)
	}
	if req.Host != "example.com" {
		t.Fatalf("expected Host header to be captured, got %q", req.Host)
	}
}

func TestReadRequest_WithBody(t *testing.T) {
	body := "hello=world"
	raw := "POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body
	req, err := RequestParser{}.ReadRequest(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if string(req.Body) != body {
		t.Fatalf("got body %q, want %q", req.Body, body)
	}
}

func TestReadRequest_RejectsChunkedBody(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n"
	_, err := RequestParser{}.ReadRequest(strings.NewReader(raw))
	if !errors.Is(err, ErrChunkedNotSupported) {
		t.Fatalf("expected ErrChunkedNotSupported, got %v", err)
	}
}

func TestReadRequest_RejectsMalformedRequestLine(t *testing.T) {
	raw := "BOGUS\r\n\r\n"
	_, err := RequestParser{}.ReadRequest(strings.NewReader(raw))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestSplitURI(t *testing.T) {
	path, query := SplitURI("/a/b?c=1")
	if path != "/a/b" || query == nil || *query != "c=1" {
		t.Fatalf("got (%q, %v)", path, query)
	}

	path, query = SplitURI("http://host.example/x/y")
	if path != "/x/y" || query != nil {
		t.Fatalf("got (%q, %v)", path, query)
	}

	path, query = SplitURI("/no-query")
	if path != "/no-query" || query != nil {
		t.Fatalf("got (%q, %v)", path, query)
	}
}
