package utils

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxUpstreamBody ограничивает размер тела ответа, сохраняемого в ошибке
const maxUpstreamBody = 1 << 12

// UpstreamError описывает неуспешный ответ внешнего HTTP API
type UpstreamError struct {
	Service    string // Имя внешнего сервиса (tmdb, github)
	StatusCode int    // HTTP статус ответа
	Body       string // Тело ответа (усеченное)
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// NewUpstreamError читает тело неуспешного ответа и упаковывает его в UpstreamError
func NewUpstreamError(service string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	return &UpstreamError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
