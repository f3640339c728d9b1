package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/models"
)

// Error kinds reported by the router itself, next to the dao kinds.
const (
	kindCache = "cache"
	kindHTTP  = "http"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  []models.FieldError `json:"fields,omitempty"`
}

// statusFor maps a DAO error kind to an HTTP status.
func statusFor(kind dao.ErrorKind) int {
	switch kind {
	case dao.KindValidation:
		return http.StatusBadRequest
	case dao.KindNotFound:
		return http.StatusNotFound
	case dao.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// daoError writes the response for a failed DAO call.
func daoError(c echo.Context, err error) error {
	kind := dao.KindOf(err)
	resp := ErrorResponse{Error: string(kind), Message: "internal error"}

	var de *dao.Error
	if errors.As(err, &de) {
		resp.Message = de.Message
	}

	var verrs models.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Message = verrs.Error()
		resp.Fields = verrs
	}

	return c.JSON(statusFor(kind), resp)
}

// errorHandler renders echo's own errors (unknown route, bad method, body
// limit, panics) in the same shape as DAO errors.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("Unhandled request error")
	}

	kind := kindHTTP
	if code == http.StatusNotFound {
		kind = string(dao.KindNotFound)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: kind, Message: message})
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to write error response")
	}
}
