// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"courseqa-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ServiceAuthMiddleware 检查调用方是否为内部服务。
// 摄取类接口只对转写服务开放，不接受学生令牌。
// 此中间件必须在 AuthMiddleware 之后使用。
func ServiceAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			// claims 不存在说明 AuthMiddleware 未能成功解析，这是一个服务器内部错误
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "无法获取调用方身份"})
			return
		}

		if claims.Role != token.RoleService {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足，该接口仅限内部服务调用"})
			return
		}

		c.Next()
	}
}
