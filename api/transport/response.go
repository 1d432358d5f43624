package transport

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Envelope is the standard API response wrapper used for both success and error payloads.
type Envelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  any    `json:"error,omitempty"`
	Meta   any    `json:"meta,omitempty"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data any, meta any) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, message any, meta any) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  message,
		Meta:   meta,
	}
}

// Write serialises payload as the response body.
func Write(ctx *fasthttp.RequestCtx, status int, payload Envelope) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = fasthttp.StatusInternalServerError
		body = []byte(`{"status":"error","code":"INTERNAL","error":"internal server error"}`)
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

// WriteError classifies err and writes the error envelope.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status, payload := ErrorFor(err)
	Write(ctx, status, payload)
}
