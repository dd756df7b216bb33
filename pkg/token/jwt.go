// Package token 提供了验证外部身份服务签发的 JSON Web Token 的功能。
// 本服务不签发面向用户的令牌：身份校验在网关完成，这里只验证签名
// 并取出已核实的 (studentId, tenantId) 对。GenerateToken 仅供测试与
// 内部服务令牌使用。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 服务间调用使用的角色，摄取接口据此放行。
const RoleService = "service"

// JWTManager 负责管理 JWT 的验证与内部令牌的生成。
type JWTManager struct {
	secretKey []byte // secretKey 用于签名和验证 token 的密钥
}

// CustomClaims 定义了身份服务放入 JWT 的自定义数据。
// StudentID 与 TenantID 是查询链路的唯一身份来源，下游不再另行推断。
type CustomClaims struct {
	StudentID string `json:"studentId"`
	TenantID  string `json:"tenantId"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secretKey: []byte(secret)}
}

// GenerateToken 签发一个携带身份对的令牌，有效期一小时。
func (m *JWTManager) GenerateToken(studentID, tenantID, role string) (string, error) {
	claims := CustomClaims{
		StudentID: studentID,
		TenantID:  tenantID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 有效，它会返回 CustomClaims 对象。
// 如果 token 无效（例如，签名不匹配或已过期），则返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
