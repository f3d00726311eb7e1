package response

import (
	"net/http"

	"quantgate/internal/consts"

	"github.com/gin-gonic/gin"
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`       // 响应数据
}

const (
	CodeSuccess    = 0
	CodeBadRequest = 40001
	CodeUnauthed   = 40101
	CodeInternal   = 50001
	CodeBusy       = 50301
)

// 发送json格式数据
func JSON(c *gin.Context, err error, data interface{}) {
	if err != nil {
		c.JSON(http.StatusBadRequest, ApiResponse{
			RequestId: c.GetString(consts.RequestId),
			Code:      CodeBadRequest,
			Message:   err.Error(),
			Data:      data,
		})
		return
	}
	c.JSON(http.StatusOK, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
	})
}

// 签名校验失败，返回401
func RequireAuthErr(c *gin.Context, err error) {
	var message string
	if err != nil {
		message = err.Error()
	} else {
		message = "unknow error."
	}
	c.JSON(http.StatusUnauthorized, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeUnauthed,
		Message:   "invalid signature:" + message,
	})
}

// 请求非法，返回400
func BadRequests(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeBadRequest,
		Message:   message,
	})
}

// 服务过载，返回503，客户端应稍后重试
func Busy(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeBusy,
		Message:   message,
	})
}

// 服务内部错误，返回500
func InternalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeInternal,
		Message:   err.Error(),
	})
}
