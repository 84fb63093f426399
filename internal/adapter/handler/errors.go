package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
	"github.com/rl1809/bookstore/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`

	// Set for insufficient stock
	BookID    int64 `json:"book_id,omitempty"`
	Requested int   `json:"requested,omitempty"`
	Available *int  `json:"available,omitempty"`
}

func httpStatus(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartEntryNotFound),
		errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrCoverNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidBook),
		errors.Is(err, domain.ErrInvalidShipping),
		errors.Is(err, domain.ErrInvalidProfile),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEbookStorageDisabled),
		errors.Is(err, service.ErrCoverStorageDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(ctx *gin.Context, err error) {
	code := httpStatus(err)
	resp := errorResponse{Error: err.Error()}

	if code == http.StatusInternalServerError {
		logger.Get().Error().Err(err).Str("path", ctx.FullPath()).Msg("request failed")
		resp.Error = "internal error"
	}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.BookID = stockErr.BookID
		resp.Requested = stockErr.Requested
		resp.Available = &stockErr.Available
	}

	ctx.JSON(code, resp)
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func grpcError(err error) error {
	var code codes.Code
	switch httpStatus(err) {
	case http.StatusNotFound:
		code = codes.NotFound
	case http.StatusConflict:
		if errors.Is(err, domain.ErrDuplicateRequest) {
			code = codes.AlreadyExists
		} else {
			code = codes.FailedPrecondition
		}
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusUnprocessableEntity:
		code = codes.FailedPrecondition
	default:
		logger.Get().Error().Err(err).Msg("rpc failed")
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
