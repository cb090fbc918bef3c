package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/mirror/internal/proto"
)

// StatusError is returned when the server answers with a status other than
// 200 OK.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to %s: status code %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("failed to %s: status code %d", e.Op, e.Code)
}

// NotFound reports whether the requested resource does not exist.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

func newStatusError(op string, rsp *http.Response) *StatusError {
	err := &StatusError{Op: op, Code: rsp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(rsp.Body, 4<<10))
	var perr proto.Error
	if json.Unmarshal(body, &perr) == nil {
		err.Message = perr.Message
	}
	return err
}
