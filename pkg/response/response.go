package response

import (
	"net/http"

	"ResQMob/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构
type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: message, Data: data})
}

func Fail(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusBadRequest, Body{Code: http.StatusBadRequest, Message: message, Data: data})
}

// FailErr maps domain error codes onto HTTP statuses.
func FailErr(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch errors.GetCode(err) {
	case errors.CodeConflict:
		status = http.StatusConflict
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodePermission:
		status = http.StatusForbidden
	case errors.CodeInvalidTransition:
		status = http.StatusUnprocessableEntity
	case errors.CodeLocationUnavailable:
		status = http.StatusFailedDependency
	}
	c.JSON(status, Body{Code: errors.GetCode(err), Message: errors.GetMessage(err)})
}
