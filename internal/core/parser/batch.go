package parser

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// RawDocument é o conteúdo bruto de um XML recebido.
type RawDocument struct {
	Name string
	Data []byte
}

// BatchResult preserva a ordem de entrada dos documentos lidos com sucesso.
type BatchResult struct {
	Documents []*domain.Document
	Failures  []domain.ParseFailure
}

// BatchOptions controla a leitura em lote.
type BatchOptions struct {
	Workers int
	Logger  *zap.Logger
}

// ParseBatch lê todos os documentos em paralelo. Uma nota inválida vira uma
// ParseFailure e não interrompe o lote. Só o cancelamento de ctx devolve erro.
func ParseBatch(ctx context.Context, docs []RawDocument, flow domain.Flow, opts BatchOptions) (BatchResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	parsed := make([]*domain.Document, len(docs))
	errs := make([]error, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := Parse(docs[i].Data, flow)
			if err != nil {
				var pe *domain.ParseError
				if errors.As(err, &pe) {
					pe.Source = docs[i].Name
				}
				errs[i] = err
				return nil
			}
			doc.SourceName = docs[i].Name
			parsed[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	for i := range docs {
		if errs[i] != nil {
			fields := []zap.Field{zap.String("arquivo", docs[i].Name), zap.String("fluxo", string(flow)), zap.Error(errs[i])}
			if domain.IsParseError(errs[i]) {
				logger.Warn("nota ignorada", fields...)
			} else {
				logger.Error("falha inesperada ao ler nota", fields...)
			}
			res.Failures = append(res.Failures, domain.ParseFailure{
				Source: docs[i].Name,
				Flow:   flow,
				Reason: errs[i].Error(),
			})
			continue
		}
		if parsed[i] != nil {
			res.Documents = append(res.Documents, parsed[i])
		}
	}
	logger.Debug("lote lido", zap.String("fluxo", string(flow)), zap.Int("notas", len(res.Documents)), zap.Int("falhas", len(res.Failures)))
	return res, nil
}
