// internal/api/middleware/auth.go
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/responses"
)

// ClaimsKey é a chave dos claims no contexto do gin.
const ClaimsKey = "user_claims"

// AuthMiddleware verifica se o token JWT é válido.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			responses.Error(c, http.StatusUnauthorized, "Token de autorização não fornecido")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			responses.Error(c, http.StatusUnauthorized, "Formato do token inválido")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			responses.Error(c, http.StatusUnauthorized, "Token inválido ou expirado")
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set(ClaimsKey, claims)
		}
		c.Next()
	}
}

// PermissionMiddleware verifica se o usuário tem uma permissão específica.
func PermissionMiddleware(requiredPermission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get(ClaimsKey)
		if !exists {
			responses.Error(c, http.StatusForbidden, "Claims do usuário não encontrados")
			return
		}

		mapClaims, _ := claims.(jwt.MapClaims)
		roles, ok := mapClaims["roles"].([]interface{})
		if !ok {
			responses.Error(c, http.StatusForbidden, "Permissões não encontradas no token")
			return
		}
		for _, role := range roles {
			if roleStr, ok := role.(string); ok && roleStr == requiredPermission {
				c.Next()
				return
			}
		}
		responses.Error(c, http.StatusForbidden, "Acesso negado: permissão necessária ausente")
	}
}

// Username devolve o usuário autenticado, ou "".
func Username(c *gin.Context) string {
	claims, ok := c.Get(ClaimsKey)
	if !ok {
		return ""
	}
	mapClaims, _ := claims.(jwt.MapClaims)
	name, _ := mapClaims["username"].(string)
	return name
}
