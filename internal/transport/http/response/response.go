package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeInvalidAPIKey      = 40003
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeNoKnowledgeBase    = 40401
	CodeCollectionNotFound = 40402
	CodeNotEnabled         = 40403
	CodeTooLarge           = 41300
	CodeNoContent          = 42200
	CodeInternalServer     = 50000
	CodeStoreError         = 50001
	CodeUpstreamError      = 50200
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// Fail is Error with the failure kind the client can switch on.
func Fail(c *gin.Context, httpStatus, code int, kind, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Kind:    kind,
	})
}
