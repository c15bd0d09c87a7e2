// internal/api/handlers/audit_handler.go
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/middleware"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/responses"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/analysis"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/parser"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/report"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/status"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/export"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// historyLimit é a quantidade de execuções devolvidas por GET /audits.
const historyLimit = 50

// Campos do formulário multipart com as tabelas de regras.
var ruleFields = []struct {
	field string
	kind  rules.TableKind
}{
	{"regrasIcms", rules.TableICMS},
	{"regrasIpi", rules.TableIPI},
	{"regrasPisCofins", rules.TablePISCOFINS},
	{"regrasDifal", rules.TableDIFAL},
}

type AuditHandler struct {
	service analysis.Service
	runs    store.RunStore
	schemas map[rules.TableKind]rules.Schema
	logger  *zap.Logger
}

// NewAuditHandler cria o handler. runs pode ser nil (histórico desligado).
func NewAuditHandler(service analysis.Service, runs store.RunStore, schemas map[rules.TableKind]rules.Schema, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{service: service, runs: runs, schemas: schemas, logger: logger}
}

// HandleAudit devolve o relatório completo em JSON.
func (h *AuditHandler) HandleAudit(c *gin.Context) {
	rep, ok := h.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// HandleExport devolve o relatório como planilha XLSX.
func (h *AuditHandler) HandleExport(c *gin.Context) {
	rep, ok := h.run(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, rep); err != nil {
		responses.Error(c, http.StatusInternalServerError, "Erro ao gerar a planilha", err.Error())
		return
	}
	fileName := fmt.Sprintf("Auditoria_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// HandleHistory lista as últimas execuções do usuário autenticado.
func (h *AuditHandler) HandleHistory(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusOK, []store.RunRecord{})
		return
	}
	runs, err := h.runs.List(c.Request.Context(), middleware.Username(c), historyLimit)
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Erro ao consultar o histórico", err.Error())
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	c.JSON(http.StatusOK, runs)
}

// run lê o formulário, executa a auditoria e grava o resumo no histórico.
func (h *AuditHandler) run(c *gin.Context) (*report.Report, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		responses.Error(c, http.StatusBadRequest, "Formulário multipart inválido", err.Error())
		return nil, false
	}

	var in analysis.Input
	if in.Inbound, err = readDocuments(files(form, "xmlEntradas")); err != nil {
		responses.Error(c, http.StatusBadRequest, "Não foi possível ler os XMLs de entrada", err.Error())
		return nil, false
	}
	if in.Outbound, err = readDocuments(files(form, "xmlSaidas")); err != nil {
		responses.Error(c, http.StatusBadRequest, "Não foi possível ler os XMLs de saída", err.Error())
		return nil, false
	}
	if len(in.Inbound)+len(in.Outbound) == 0 {
		responses.Error(c, http.StatusBadRequest, "Nenhum arquivo XML foi enviado")
		return nil, false
	}

	schemas := h.schemas
	if fh := first(form, "schemaToml"); fh != nil {
		if schemas, err = readSchemas(fh); err != nil {
			responses.Error(c, http.StatusBadRequest, "Esquema TOML inválido", err.Error())
			return nil, false
		}
	}

	var inputs []rules.Input
	for _, rf := range ruleFields {
		fh := first(form, rf.field)
		if fh == nil {
			continue
		}
		data, err := readFile(fh)
		if err != nil {
			responses.Error(c, http.StatusBadRequest, "Não foi possível abrir a tabela "+rf.field, err.Error())
			return nil, false
		}
		inputs = append(inputs, rules.Input{Kind: rf.kind, Filename: fh.Filename, Reader: bytes.NewReader(data)})
	}
	in.Catalog = rules.NewLoader(schemas, h.logger).Load(inputs)

	if in.InboundStatus, err = readStatus(first(form, "statusEntradas")); err != nil {
		responses.Error(c, http.StatusBadRequest, "Planilha de situação das entradas inválida", err.Error())
		return nil, false
	}
	if in.OutboundStatus, err = readStatus(first(form, "statusSaidas")); err != nil {
		responses.Error(c, http.StatusBadRequest, "Planilha de situação das saídas inválida", err.Error())
		return nil, false
	}

	rep, err := h.service.Auditar(c.Request.Context(), in)
	if errors.Is(err, analysis.ErrNothingToAudit) {
		responses.Error(c, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Erro ao executar a auditoria", err.Error())
		return nil, false
	}

	if h.runs != nil {
		if err := h.runs.Save(c.Request.Context(), store.RecordFromReport(rep, middleware.Username(c))); err != nil {
			h.logger.Warn("execução não registrada no histórico", zap.String("execucao", rep.RunID), zap.Error(err))
		}
	}
	return rep, true
}

// files aceita o campo com e sem o sufixo "[]" usado por alguns clientes.
func files(form *multipart.Form, field string) []*multipart.FileHeader {
	out := append([]*multipart.FileHeader{}, form.File[field]...)
	return append(out, form.File[field+"[]"]...)
}

func first(form *multipart.Form, field string) *multipart.FileHeader {
	if fhs := files(form, field); len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler %s: %w", fh.Filename, err)
	}
	return data, nil
}

func readDocuments(headers []*multipart.FileHeader) ([]parser.RawDocument, error) {
	docs := make([]parser.RawDocument, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		docs = append(docs, parser.RawDocument{Name: fh.Filename, Data: data})
	}
	return docs, nil
}

func readSchemas(fh *multipart.FileHeader) (map[rules.TableKind]rules.Schema, error) {
	data, err := readFile(fh)
	if err != nil {
		return nil, err
	}
	return rules.LoadSchemas(bytes.NewReader(data))
}

func readStatus(fh *multipart.FileHeader) (status.Table, error) {
	if fh == nil {
		return nil, nil
	}
	data, err := readFile(fh)
	if err != nil {
		return nil, err
	}
	return status.LoadTable(bytes.NewReader(data), fh.Filename, status.DefaultSchema)
}
