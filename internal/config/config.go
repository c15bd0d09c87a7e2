// Package config carrega a configuração do servidor e da CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config é a configuração completa da aplicação.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type FirestoreConfig struct {
	Project  string `mapstructure:"project"`
	Database string `mapstructure:"database"`
}

// AuditConfig controla o motor de auditoria.
type AuditConfig struct {
	Workers        int     `mapstructure:"workers"`
	RateTolerance  float64 `mapstructure:"rate_tolerance"`
	ValueTolerance float64 `mapstructure:"value_tolerance"`
	DifalTolerance float64 `mapstructure:"difal_tolerance"`
	SchemaFile     string  `mapstructure:"schema_file"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// Load lê padrões, o arquivo TOML indicado em SENTINELA_CONFIG (ou
// ./sentinela.toml) e variáveis de ambiente com prefixo SENTINELA_. PORT,
// JWT_SECRET, FIRESTORE_PROJECT e FIRESTORE_DATABASE continuam valendo.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("firestore.project", "sentinela-fiscal")
	v.SetDefault("firestore.database", "sentinela-fiscal-db")
	v.SetDefault("audit.workers", runtime.NumCPU())
	v.SetDefault("audit.rate_tolerance", 0.1)
	v.SetDefault("audit.value_tolerance", 0.01)
	v.SetDefault("audit.difal_tolerance", 0.05)
	v.SetDefault("audit.schema_file", "")
	v.SetDefault("upload.max_bytes", int64(64<<20))

	v.SetConfigType("toml")
	if path := os.Getenv("SENTINELA_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("sentinela")
	}

	v.SetEnvPrefix("SENTINELA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variáveis herdadas do deploy no Cloud Run.
	_ = v.BindEnv("server.port", "SENTINELA_SERVER_PORT", "PORT")
	_ = v.BindEnv("auth.jwt_secret", "SENTINELA_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("firestore.project", "SENTINELA_FIRESTORE_PROJECT", "FIRESTORE_PROJECT")
	_ = v.BindEnv("firestore.database", "SENTINELA_FIRESTORE_DATABASE", "FIRESTORE_DATABASE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("erro ao interpretar configuração: %w", err)
	}
	if c.Audit.Workers <= 0 {
		c.Audit.Workers = runtime.NumCPU()
	}
	return c, nil
}
