package core

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300" viewBox="0 0 400 300">` +
	`<rect width="400" height="300" fill="#f3f4f6"/>` +
	`<text x="200" y="150" font-family="sans-serif" font-size="16" fill="#6b7280" text-anchor="middle">Image not available offline</text>` +
	`</svg>`

// OfflineDocument is served for navigations when neither the network nor a cached shell is available.
const OfflineDocument = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Offline</title></head>
<body>
<h1>You are offline</h1>
<p>Today's tale will be back when your connection returns.</p>
</body>
</html>
`

func placeholderResponse(req *http.Request) *http.Response {
	return syntheticResponse(req, "image/svg+xml", placeholderSVG)
}

func offlineResponse(req *http.Request) *http.Response {
	return syntheticResponse(req, "text/html; charset=utf-8", OfflineDocument)
}

func syntheticResponse(req *http.Request, contentType, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-store")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func isOK(res *http.Response) bool {
	return res.StatusCode >= 200 && res.StatusCode < 300
}
