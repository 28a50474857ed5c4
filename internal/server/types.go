package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/formloom/formloom/internal/generator"
	"github.com/formloom/formloom/internal/spec"
	"github.com/formloom/formloom/internal/synthesizer"
)

const (
	// Server defaults
	DefaultServerAddress = "127.0.0.1"
	DefaultServerPort    = 8080
	DefaultBodyLimit     = 16 * 1024 * 1024 // 16MB, uploads included

	// Multipart field names for the file upload endpoint
	FileField            = "file"
	DefaultRequiredField = "default_required"
)

type textRequest struct {
	Text            string `json:"text"`
	DefaultRequired *bool  `json:"default_required"`
}

type docRequest struct {
	URL             string `json:"url"`
	DefaultRequired *bool  `json:"default_required"`
}

type scriptRequest struct {
	Code            string `json:"code"`
	DefaultRequired *bool  `json:"default_required"`
}

type createRequest struct {
	Spec spec.FormSpecification `json:"form_specification"`
}

// errorResponse is the JSON body for every non-2xx response. Kind gives
// clients a stable discriminator; Violations is present only for
// specification validation failures.
type errorResponse struct {
	Error      string           `json:"error"`
	Kind       string           `json:"kind,omitempty"`
	Violations []spec.Violation `json:"violations,omitempty"`
}

// defaultRequired resolves the optional flag; questions default to required,
// matching how the generated forms are usually used.
func defaultRequired(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// classify maps a pipeline error onto an HTTP status and a stable kind tag.
func classify(err error) (int, errorResponse) {
	var (
		authErr    *generator.AuthError
		rateErr    *generator.RateLimitError
		parseErr   *generator.ParseError
		valErr     *spec.ValidationError
		subErr     *synthesizer.SubmissionError
		partialErr *synthesizer.PartialSubmissionError
		fiberErr   *fiber.Error
	)

	switch {
	case errors.As(err, &authErr):
		return fiber.StatusUnauthorized, errorResponse{Error: err.Error(), Kind: "auth"}
	case errors.As(err, &rateErr):
		return fiber.StatusTooManyRequests, errorResponse{Error: err.Error(), Kind: "rate_limit"}
	case errors.As(err, &parseErr):
		return fiber.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "model_response"}
	case errors.As(err, &valErr):
		return fiber.StatusUnprocessableEntity, errorResponse{
			Error:      err.Error(),
			Kind:       "validation",
			Violations: valErr.Violations,
		}
	case errors.As(err, &partialErr):
		return fiber.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "partial_submission"}
	case errors.As(err, &subErr):
		return fiber.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "submission"}
	case errors.As(err, &fiberErr):
		return fiberErr.Code, errorResponse{Error: fiberErr.Message}
	default:
		return fiber.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
}
