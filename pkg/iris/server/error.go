package server

import (
	"errors"

	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc/codes"
)

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandler renders errors as JSON. Runtime errors are mapped to an HTTP status through their
// status code.
var ErrorHandler = func(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := Error{Message: err.Error()}

	var e *fiber.Error
	if errors.As(err, &e) {
		status = e.Code
	} else {
		code := runtime.Code(err)
		status = httpStatus(code)
		body.Code = code.String()
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Status(status).JSON(ErrorResponse{Error: body})
}

func httpStatus(code codes.Code) int {
	switch code { //nolint:exhaustive // everything else is a server error
	case codes.OK:
		return fiber.StatusOK
	case codes.InvalidArgument:
		return fiber.StatusBadRequest
	case codes.PermissionDenied:
		return fiber.StatusForbidden
	case codes.NotFound:
		return fiber.StatusNotFound
	case codes.AlreadyExists:
		return fiber.StatusConflict
	case codes.FailedPrecondition:
		return fiber.StatusPreconditionFailed
	case codes.ResourceExhausted:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}
