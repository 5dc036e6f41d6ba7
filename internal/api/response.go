package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

var defaultHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Methods": "GET, POST, DELETE, OPTIONS",
}

// Outcome is the logical result of a request, before it becomes a response.
type Outcome struct {
	Status int
	Body   any
	// Raw, when set, is sent as is instead of a JSON rendering of Body.
	Raw     []byte
	Headers map[string]string
}

func Success(body any) Outcome { return Outcome{Status: http.StatusOK, Body: body} }

func Created(body any) Outcome { return Outcome{Status: http.StatusCreated, Body: body} }

func BadInput(message string) Outcome { return errorOutcome(http.StatusBadRequest, message) }

func NotFound(message string) Outcome { return errorOutcome(http.StatusNotFound, message) }

func Forbidden(message string) Outcome { return errorOutcome(http.StatusForbidden, message) }

func ServerError(message string) Outcome {
	return errorOutcome(http.StatusInternalServerError, message)
}

// Attachment sends data as a file download.
func Attachment(data []byte, contentType, disposition string) Outcome {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Outcome{
		Status: http.StatusOK,
		Raw:    data,
		Headers: map[string]string{
			"Content-Type":        contentType,
			"Content-Disposition": disposition,
		},
	}
}

func errorOutcome(status int, message string) Outcome {
	return Outcome{Status: status, Body: map[string]string{"error": message}}
}

// Response is an Outcome rendered for the wire.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Render applies the default header set and serialises the body.
func (o Outcome) Render() (Response, error) {
	headers := make(map[string]string, len(defaultHeaders)+len(o.Headers))
	for k, v := range defaultHeaders {
		headers[k] = v
	}
	for k, v := range o.Headers {
		headers[k] = v
	}

	resp := Response{StatusCode: o.Status, Headers: headers, Body: o.Raw}
	if o.Raw == nil && o.Body != nil {
		body, err := json.Marshal(o.Body)
		if err != nil {
			return Response{}, err
		}
		resp.Body = body
	}
	return resp, nil
}

func respond(w http.ResponseWriter, o Outcome) {
	resp, err := o.Render()
	if err != nil {
		slog.Error("Failed to render response", "status", o.Status, "error", err)
		resp, _ = ServerError("failed to render response").Render()
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", resp.StatusCode, "body", string(resp.Body))
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
