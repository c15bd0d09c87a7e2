// Package store guarda o histórico resumido das execuções de auditoria.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/report"
)

// RunRecord é o resumo persistido de uma execução. O relatório completo não é
// guardado.
type RunRecord struct {
	ID          string                    `firestore:"id" json:"id"`
	User        string                    `firestore:"usuario" json:"usuario"`
	CreatedAt   time.Time                 `firestore:"criadoEm" json:"criado_em"`
	Documents   map[string]int            `firestore:"notas" json:"notas"`
	Failures    int                       `firestore:"falhas" json:"falhas"`
	Outcomes    map[string]map[string]int `firestore:"resultados" json:"resultados"`
	Lines       map[string]int            `firestore:"linhas" json:"linhas"`
	Complement  float64                   `firestore:"complementoTotal" json:"complemento_total"`
	Unavailable []string                  `firestore:"categoriasIndisponiveis" json:"categorias_indisponiveis"`
}

// RecordFromReport resume um relatório para o histórico.
func RecordFromReport(rep *report.Report, user string) RunRecord {
	rec := RunRecord{
		ID:         rep.RunID,
		User:       user,
		CreatedAt:  rep.GeneratedAt,
		Documents:  make(map[string]int),
		Failures:   rep.Summary.Failures,
		Outcomes:   make(map[string]map[string]int),
		Lines:      make(map[string]int),
		Complement: rep.Summary.Total,
	}
	for flow, n := range rep.Summary.Documents {
		rec.Documents[string(flow)] = n
	}
	for cat, outcomes := range rep.Summary.Outcomes {
		m := make(map[string]int, len(outcomes))
		for o, n := range outcomes {
			m[string(o)] = n
		}
		rec.Outcomes[string(cat)] = m
	}
	for line, n := range rep.Summary.Lines {
		rec.Lines[line] = n
	}
	for _, u := range rep.Unavailable {
		rec.Unavailable = append(rec.Unavailable, string(u.Category))
	}
	return rec
}

// RunStore grava e lista execuções.
type RunStore interface {
	Save(ctx context.Context, rec RunRecord) error
	List(ctx context.Context, user string, limit int) ([]RunRecord, error)
}

const runsCollection = "auditorias"

// FirestoreRunStore grava na coleção "auditorias", um documento por execução.
type FirestoreRunStore struct {
	db *firestore.Client
}

func NewFirestoreRunStore(db *firestore.Client) *FirestoreRunStore {
	return &FirestoreRunStore{db: db}
}

func (s *FirestoreRunStore) Save(ctx context.Context, rec RunRecord) error {
	if _, err := s.db.Collection(runsCollection).Doc(rec.ID).Set(ctx, rec); err != nil {
		return fmt.Errorf("erro ao gravar execução %s: %w", rec.ID, err)
	}
	return nil
}

// List devolve as execuções mais recentes do usuário.
func (s *FirestoreRunStore) List(ctx context.Context, user string, limit int) ([]RunRecord, error) {
	iter := s.db.Collection(runsCollection).
		Where("usuario", "==", user).
		OrderBy("criadoEm", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []RunRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("erro ao listar execuções: %w", err)
		}
		var rec RunRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("erro ao ler execução %s: %w", doc.Ref.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// MemoryRunStore mantém o histórico em memória. Serve à CLI e aos testes.
type MemoryRunStore struct {
	mu   sync.Mutex
	runs []RunRecord
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{}
}

func (s *MemoryRunStore) Save(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return nil
}

func (s *MemoryRunStore) List(_ context.Context, user string, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RunRecord
	for _, r := range s.runs {
		if r.User == user {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
