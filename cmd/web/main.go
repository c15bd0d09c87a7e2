// cmd/web/main.go
package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/handlers"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/responses"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/config"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/analysis"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/audit"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/auth"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/store"
)

// initFirestoreClient initializes the Firestore client.
func initFirestoreClient(ctx context.Context, cfg config.FirestoreConfig) *firestore.Client {
	client, err := firestore.NewClientWithDatabase(ctx, cfg.Project, cfg.Database)
	if err != nil {
		log.Fatalf("Erro ao inicializar cliente Firestore para o banco '%s': %v\n", cfg.Database, err)
	}
	log.Printf("Conectado com sucesso ao Firestore, banco de dados: %s", cfg.Database)
	return client
}

func loadSchemas(path string) map[rules.TableKind]rules.Schema {
	if path == "" {
		return rules.DefaultSchemas()
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Erro ao abrir esquema de tabelas %s: %v", path, err)
	}
	defer f.Close()
	schemas, err := rules.LoadSchemas(f)
	if err != nil {
		log.Fatalf("Esquema de tabelas inválido: %v", err)
	}
	return schemas
}

func main() {
	logger := responses.InitLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Erro ao carregar configuração: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET não definido; tokens não serão aceitos")
	}

	ctx := context.Background()
	firestoreClient := initFirestoreClient(ctx, cfg.Firestore)
	defer firestoreClient.Close()

	analysisService := analysis.NewService(analysis.Options{
		Workers: cfg.Audit.Workers,
		Logger:  logger,
		Engine: []audit.Option{
			audit.WithTolerances(cfg.Audit.RateTolerance, cfg.Audit.ValueTolerance, cfg.Audit.DifalTolerance),
		},
	})
	authService := auth.NewService(auth.NewFirestoreUserStore(firestoreClient), []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, logger)
	runStore := store.NewFirestoreRunStore(firestoreClient)

	router := api.NewRouter(api.Deps{
		Auth:         handlers.NewAuthHandler(authService),
		Audit:        handlers.NewAuditHandler(analysisService, runStore, loadSchemas(cfg.Audit.SchemaFile), logger),
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
		MaxFormBytes: cfg.Upload.MaxBytes,
	})

	logger.Info("configuração carregada", zap.Int("workers", cfg.Audit.Workers), zap.String("firestore", cfg.Firestore.Database))
	log.Printf("🚀 Servidor iniciado e escutando na porta %s", cfg.Server.Port)

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("Falha ao iniciar o servidor: ", err)
	}
}
