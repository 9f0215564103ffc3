package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Error codes returned in the "code" field of failed responses.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeEventNotFound   = "EVENT_NOT_FOUND"
	CodeEventExpired    = "EVENT_EXPIRED"
	CodeGuestNotFound   = "GUEST_NOT_FOUND"
	CodeDuplicateEmail  = "DUPLICATE_EMAIL"
	CodeGuestLimit      = "GUEST_LIMIT_REACHED"
	CodeNoQRCode        = "NO_QR_CODE"
	CodeInvalidGuestID  = "INVALID_GUEST_ID"
	CodeLiveUnavailable = "LIVE_UPDATES_UNAVAILABLE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "code": code, "message": message})
}

// respondInternal hides err from the client; the request logger reports it.
func respondInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	respondError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// respondInvalid reports a binding failure field by field. The raw error only
// goes to the request log.
func respondInvalid(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)
	body := gin.H{"success": false, "code": CodeValidation, "message": "Invalid request body"}
	if fields := fieldErrors(err); len(fields) > 0 {
		body["message"] = fields[0].Message
		body["errors"] = fields
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return out
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return []FieldError{{Field: typeErr.Field, Message: typeErr.Field + " has the wrong type"}}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "phone":
		return name + " must be a valid phone number"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", name, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", name, bound, fe.Param())
	}
	return name + " is invalid"
}

// jsonFieldName makes validation errors name fields as clients send them.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

func respondOK(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}
