package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/logging"
	"github.com/CageChen/filehub/internal/metrics"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string   `json:"error"`
	Kind  mfs.Kind `json:"kind"`
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind mfs.Kind) int {
	switch kind {
	case mfs.KindOutOfScope, mfs.KindMissingField, mfs.KindWrongKind:
		return http.StatusBadRequest
	case mfs.KindModeForbidden:
		return http.StatusForbidden
	case mfs.KindNotFound:
		return http.StatusNotFound
	case mfs.KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Errors that did not come from the gateway
// are reported as unexpected without leaking their text.
func respondError(c *gin.Context, op string, err error) {
	kind := mfs.KindOf(err)
	msg := "Failed to " + op
	var fe *mfs.Error
	if errors.As(err, &fe) {
		msg = fe.Error()
	}
	if kind == mfs.KindUnexpected || kind == mfs.KindRemoteFetchFailed {
		logging.WithContext(c.Request.Context()).Error("operation failed",
			zap.String("op", op),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	metrics.RecordOperation(op, string(kind))
	c.JSON(statusFor(kind), ErrorResponse{Error: msg, Kind: kind})
}

func missingField(c *gin.Context, op, msg string) {
	respondError(c, op, &mfs.Error{Kind: mfs.KindMissingField, Op: op, Msg: msg})
}

func succeeded(op string) {
	metrics.RecordOperation(op, "success")
}
