// internal/core/analysis/service.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/audit"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/parser"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/report"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/status"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// ErrNothingToAudit indica que nenhuma tabela de regras pôde ser usada e
// nenhuma nota foi lida.
var ErrNothingToAudit = errors.New("nada a auditar: nenhuma tabela de regras disponível e nenhuma nota válida")

// Input reúne tudo o que uma execução consome. Os status são opcionais.
type Input struct {
	Inbound        []parser.RawDocument
	Outbound       []parser.RawDocument
	InboundStatus  status.Table
	OutboundStatus status.Table
	Catalog        *rules.Catalog
}

// Options configura o serviço.
type Options struct {
	Workers int
	Logger  *zap.Logger
	Engine  []audit.Option
	Now     func() time.Time
}

type Service interface {
	Auditar(ctx context.Context, in Input) (*report.Report, error)
}

type service struct {
	workers int
	logger  *zap.Logger
	engine  []audit.Option
	now     func() time.Time
}

func NewService(opts Options) Service {
	s := &service{
		workers: opts.Workers,
		logger:  opts.Logger,
		engine:  opts.Engine,
		now:     opts.Now,
	}
	if s.workers <= 0 {
		s.workers = runtime.NumCPU()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Auditar lê as notas dos dois fluxos, concilia a situação, audita cada nota e
// agrega o resultado. A conciliação e a agregação só começam quando a etapa
// anterior terminou por inteiro.
func (s *service) Auditar(ctx context.Context, in Input) (*report.Report, error) {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("execucao", runID))

	catalog := in.Catalog
	if catalog == nil {
		catalog = rules.NewCatalog()
	}
	if err := catalog.Err(); err != nil {
		log.Warn("categorias fora da auditoria", zap.Error(err))
	}

	batch := parser.BatchOptions{Workers: s.workers, Logger: log}
	var inbound, outbound parser.BatchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inbound, err = parser.ParseBatch(gctx, in.Inbound, domain.FlowInbound, batch)
		return err
	})
	g.Go(func() error {
		var err error
		outbound, err = parser.ParseBatch(gctx, in.Outbound, domain.FlowOutbound, batch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("leitura das notas interrompida: %w", err)
	}

	matched := status.Resolve(in.InboundStatus, inbound.Documents) + status.Resolve(in.OutboundStatus, outbound.Documents)

	docs := make([]*domain.Document, 0, len(inbound.Documents)+len(outbound.Documents))
	docs = append(docs, inbound.Documents...)
	docs = append(docs, outbound.Documents...)
	failures := make([]domain.ParseFailure, 0, len(inbound.Failures)+len(outbound.Failures))
	failures = append(failures, inbound.Failures...)
	failures = append(failures, outbound.Failures...)

	engine := audit.NewEngine(catalog, append([]audit.Option{audit.WithLogger(log)}, s.engine...)...)
	results := make([]audit.DocumentResult, len(docs))
	ag, actx := errgroup.WithContext(ctx)
	ag.SetLimit(s.workers)
	for i := range docs {
		ag.Go(func() error {
			if err := actx.Err(); err != nil {
				return err
			}
			results[i] = engine.AuditDocument(docs[i])
			return nil
		})
	}
	if err := ag.Wait(); err != nil {
		return nil, fmt.Errorf("auditoria interrompida: %w", err)
	}

	rep := report.Build(docs, results, failures, catalog)
	rep.RunID = runID
	rep.GeneratedAt = s.now()

	if !catalog.AnyAvailable() && len(docs) == 0 {
		return rep, ErrNothingToAudit
	}

	log.Info("auditoria concluída",
		zap.Int("notas", len(docs)),
		zap.Int("falhas", len(failures)),
		zap.Int("situacoes_conciliadas", matched),
		zap.Float64("complemento_total", rep.Summary.Total))
	return rep, nil
}
