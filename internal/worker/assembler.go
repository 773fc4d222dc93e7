package worker

import (
	"fmt"
	"net/http"
	"reflect"

	"insights-gateway/internal/engine"
	"insights-gateway/internal/model"

	json "github.com/goccy/go-json"
)

// Response is the wire response for a successful upload.
type Response struct {
	Status int
	Body   []byte
	Upload model.UploadMetadata
	Rules  int
}

// Assemble validates an evaluation result, stamps the upload metadata into
// it and serialises it as JSON followed by CRLF.
func Assemble(res engine.Result, size int64, userAgent string) (*Response, error) {
	if res.IsInvalid() {
		return nil, model.NewError(model.KindInvalidArchive, "%s", res.Invalid)
	}
	if len(res.Doc) == 0 {
		return nil, model.NewError(model.KindMissingResults, "Rule results missing")
	}
	rules, ok := countReports(res.Doc["reports"])
	if !ok {
		return nil, model.NewError(model.KindMissingResults, "Rule results missing")
	}

	md := model.NewUploadMetadata(size, userAgent)
	res.Doc["upload"] = md.Map()

	body, err := json.Marshal(res.Doc)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	body = append(body, '\r', '\n')

	return &Response{
		Status: http.StatusCreated,
		Body:   body,
		Upload: md,
		Rules:  rules,
	}, nil
}

// countReports returns the length of the reports sequence, whatever its
// concrete slice type.
func countReports(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, false
	}
	return rv.Len(), true
}

// ResultSystemID returns system.system_id from a result document, or "".
func ResultSystemID(doc map[string]any) string {
	sys, _ := doc["system"].(map[string]any)
	id, _ := sys["system_id"].(string)
	return id
}
