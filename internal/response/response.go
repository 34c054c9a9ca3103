package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the envelope of every REST reply.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody is a typed failure. Fields carries per-field validation
// messages, keyed by JSON field name.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Metadata ties a reply to its request and, for session routes, to the
// session it concerns.
type Metadata struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Success sends data with the given status.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Data: data, Metadata: buildMetadata(c)})
}

// Fail sends the catalogue message for code.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	fail(c, statusCode, &ErrorBody{Code: code, Message: GetMessage(code)})
}

// FailWithDetail sends detail as the message, falling back to the catalogue
// message when detail is empty. The quiz backend's own error text reaches
// the participant this way.
func FailWithDetail(c *gin.Context, statusCode int, code ErrCode, detail string) {
	if detail == "" {
		detail = GetMessage(code)
	}
	fail(c, statusCode, &ErrorBody{Code: code, Message: detail})
}

// FailWithFields sends a validation failure with per-field messages.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	fail(c, statusCode, &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields})
}

// AbortFail stops the middleware chain with an error reply.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

func fail(c *gin.Context, statusCode int, body *ErrorBody) {
	c.JSON(statusCode, Response{Error: body, Metadata: buildMetadata(c)})
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		id = uuid.New().String()
	}
	return Metadata{
		RequestID: id,
		SessionID: c.Param("session_id"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
