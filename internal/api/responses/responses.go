// Package responses padroniza o logger da aplicação e as respostas de erro da API.
package responses

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InitLogger cria o logger global. LOG_LEVEL=debug usa a configuração de
// desenvolvimento.
func InitLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		logger = zap.NewNop()
	}
	zap.ReplaceGlobals(logger)
	return logger
}

// ErrorBody é o corpo JSON de toda resposta de erro.
type ErrorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// Error responde com o status e a mensagem; detalhes vão para o corpo e para o log.
func Error(c *gin.Context, status int, message string, details ...string) {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("rota", c.FullPath()),
		zap.String("erro", message),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Strings("detalhes", details))
	}
	if status >= 500 {
		zap.L().Error("falha na requisição", fields...)
	} else {
		zap.L().Warn("requisição rejeitada", fields...)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: message, Details: details})
}
