// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"courseqa-go/internal/apperr"
	"courseqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// respondOK 按统一信封返回成功响应。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// respondError 将应用错误映射为统一的错误响应。
// 对外只暴露分类与消息，provider 的内部细节留在日志里。
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	message := "内部服务错误"

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("请求处理失败: %s %s, error: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		log.Warnf("请求被拒绝: %s %s, status: %d, error: %v", c.Request.Method, c.Request.URL.Path, status, err)
	}

	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}
