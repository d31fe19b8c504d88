package xhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/ProjectsTask/EasyAuction/errcode"
)

type body struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// OkJson 返回成功响应
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, body{Code: 0, Msg: "ok", Data: data})
}

// Error 根据错误分类映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// ErrorWithData 返回错误响应并附带数据 (例如出价被拒时的最低出价)
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	var e *errcode.Err
	if !errors.As(err, &e) {
		e = errcode.ErrUnexpected
	}
	c.AbortWithStatusJSON(StatusOf(e.Kind), body{Code: e.Code, Msg: err.Error(), Data: data})
}

func StatusOf(kind errcode.Kind) int {
	switch kind {
	case errcode.KindValidation:
		return http.StatusBadRequest
	case errcode.KindNotFound:
		return http.StatusNotFound
	case errcode.KindConflict:
		return http.StatusConflict
	case errcode.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
