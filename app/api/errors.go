package api

import (
	"errors"
	"fmt"
	"log/slog"

	"taxrag/types"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps internal error kinds to the stable external response
// shape. Downstream failures become a safe service-unavailable message;
// internal detail never leaks to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiErr, ok := err.(Error); ok {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	if valErr, ok := err.(ValidationError); ok {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var filterErr types.InvalidFilterError
	if errors.As(err, &filterErr) {
		return c.Status(fiber.StatusBadRequest).JSON(NewError(fiber.StatusBadRequest, filterErr.Error()))
	}

	var extractErr types.ExtractionError
	if errors.As(err, &extractErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewError(fiber.StatusUnprocessableEntity, extractErr.Error()))
	}

	var (
		embedErr    types.EmbeddingError
		modelErr    types.ModelMismatchError
		langErr     types.LanguageModelError
		unavailable bool
	)
	switch {
	case errors.As(err, &embedErr), errors.As(err, &modelErr), errors.As(err, &langErr):
		unavailable = true
	}
	if unavailable {
		slog.Error("upstream failure", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(NewError(
			fiber.StatusServiceUnavailable,
			"the knowledge base is temporarily unavailable, please try again later",
		))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	slog.Error("request failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(NewError(
		fiber.StatusInternalServerError, "internal server error"))
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrConflict(msg string) Error {
	return Error{
		Code:    fiber.StatusConflict,
		Message: msg,
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
