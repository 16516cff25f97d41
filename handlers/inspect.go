package handlers

import (
	json "github.com/json-iterator/go"

	"github.com/indigo-web/asynchttp/http/headers"
	"github.com/indigo-web/asynchttp/http/status"
)

// Report is what Inspect responds with.
type Report struct {
	Method   string          `json:"method"`
	URI      string          `json:"uri"`
	Protocol string          `json:"protocol"`
	Headers  headers.Headers `json:"headers"`
	Chunks   int             `json:"chunks"`
	BodySize int             `json:"body_size"`
	Body     string          `json:"body"`
	Trailers headers.Headers `json:"trailers"`
}

// Inspect responds with a JSON description of the request. The body is included only if it
// doesn't exceed MaxBody bytes, otherwise just its size is reported.
type Inspect struct {
	base
	MaxBody int
	report  Report
	body    []byte
}

func NewInspect() *Inspect {
	return &Inspect{MaxBody: 4096}
}

func (i *Inspect) OnHeaders(hdrs headers.Headers) error {
	i.report.Method = i.method
	i.report.URI = i.uri
	i.report.Protocol = i.version.String()
	i.report.Headers = hdrs

	return nil
}

func (i *Inspect) OnBody(chunk []byte) error {
	i.report.Chunks++
	i.report.BodySize += len(chunk)

	if len(i.body)+len(chunk) <= i.MaxBody {
		i.body = append(i.body, chunk...)
	}

	return nil
}

func (i *Inspect) OnEnd(trailers headers.Headers) error {
	if i.report.BodySize <= i.MaxBody {
		i.report.Body = string(i.body)
	}

	i.report.Trailers = trailers

	body, err := json.ConfigCompatibleWithStandardLibrary.Marshal(i.report)
	if err != nil {
		return err
	}

	return i.respond(status.OK, "application/json", body)
}
