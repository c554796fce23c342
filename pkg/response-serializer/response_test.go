package serializer

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestResponseToBytesBodyIntact(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		panic(err)
	}

	_, err = ResponseToBytes(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if fmt.Sprintf("%s", body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestRoundTrip(t *testing.T) {
	res := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("GIF89a")),
	}
	res.Header.Set("Content-Type", "image/gif")

	bts, err := ResponseToBytes(res)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	req, _ := http.NewRequest("GET", "https://media.example.com/us/en/2024-03-15.gif", nil)
	res2, err := BytesToResponse(bts, req)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if ct := res2.Header.Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("Content-Type header wrong %+v", res2.Header)
	}
	if res2.StatusCode != http.StatusOK || res2.ProtoMajor != 1 || res2.ProtoMinor != 1 {
		t.Fatalf("Status line wrong: %d HTTP/%d.%d", res2.StatusCode, res2.ProtoMajor, res2.ProtoMinor)
	}
	if res2.Request != req {
		t.Fatal("Request not attached")
	}
	body, _ := io.ReadAll(res2.Body)
	if string(body) != "GIF89a" {
		t.Fatalf("Body: %s", body)
	}
}

func TestBytesToResponseMalformed(t *testing.T) {
	if _, err := BytesToResponse([]byte("not a response"), nil); err == nil {
		t.Fatal("Expected error")
	}
}
