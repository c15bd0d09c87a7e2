package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/analysis"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/audit"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/parser"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/report"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/rules"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/status"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/export"
)

var (
	inboundDir     string
	outboundDir    string
	icmsTable      string
	ipiTable       string
	pisCofinsTable string
	difalTable     string
	inboundStatus  string
	outboundStatus string
	schemaFile     string
	outputPath     string
	csvCategory    string
	workers        int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Executa a auditoria sobre pastas de XML",
	Long: `Lê os XMLs das pastas de entrada e saída, carrega as tabelas de regras e
grava o relatório.

A saída depende da extensão de --output:
  .xlsx  planilha com uma aba por tributo, itens lidos e falhas
  .json  relatório completo
  .csv   aba de um tributo (exige --categoria)
Sem --output, imprime o resumo na tela.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&inboundDir, "entradas", "", "Pasta com os XMLs de entrada")
	f.StringVar(&outboundDir, "saidas", "", "Pasta com os XMLs de saída")
	f.StringVar(&icmsTable, "icms", "", "Tabela de regras de ICMS (.csv, .xlsx, .xls)")
	f.StringVar(&ipiTable, "ipi", "", "Tabela TIPI")
	f.StringVar(&pisCofinsTable, "pis-cofins", "", "Tabela de CST de PIS/COFINS")
	f.StringVar(&difalTable, "difal", "", "Tabela de alíquotas internas por UF")
	f.StringVar(&inboundStatus, "status-entradas", "", "Planilha de situação das notas de entrada")
	f.StringVar(&outboundStatus, "status-saidas", "", "Planilha de situação das notas de saída")
	f.StringVar(&schemaFile, "schema", "", "TOML com o leiaute das tabelas de regras")
	f.StringVarP(&outputPath, "output", "o", "", "Arquivo de saída (.xlsx, .json ou .csv)")
	f.StringVar(&csvCategory, "categoria", "", "Tributo exportado em CSV (ICMS, IPI, PIS, COFINS, DIFAL)")
	f.IntVar(&workers, "workers", 0, "Notas processadas em paralelo (padrão: audit.workers)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	if inboundDir == "" && outboundDir == "" {
		return fmt.Errorf("informe ao menos uma pasta com --entradas ou --saidas")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var in analysis.Input
	var err error
	if in.Inbound, err = readDir(inboundDir); err != nil {
		return err
	}
	if in.Outbound, err = readDir(outboundDir); err != nil {
		return err
	}
	if in.InboundStatus, err = readStatus(inboundStatus); err != nil {
		return err
	}
	if in.OutboundStatus, err = readStatus(outboundStatus); err != nil {
		return err
	}

	schemaPath := schemaFile
	if schemaPath == "" {
		schemaPath = cfg.Audit.SchemaFile
	}
	schemas, err := readSchemas(schemaPath)
	if err != nil {
		return err
	}
	inputs, err := ruleInputs()
	if err != nil {
		return err
	}
	in.Catalog = rules.NewLoader(schemas, logger).Load(inputs)

	n := workers
	if n <= 0 {
		n = cfg.Audit.Workers
	}
	svc := analysis.NewService(analysis.Options{
		Workers: n,
		Logger:  logger,
		Engine: []audit.Option{
			audit.WithTolerances(cfg.Audit.RateTolerance, cfg.Audit.ValueTolerance, cfg.Audit.DifalTolerance),
		},
	})
	rep, err := svc.Auditar(ctx, in)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), rep)
}

func readDir(dir string) ([]parser.RawDocument, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("erro ao listar %s: %w", dir, err)
	}
	var docs []parser.RawDocument
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("erro ao ler %s: %w", e.Name(), err)
		}
		docs = append(docs, parser.RawDocument{Name: e.Name(), Data: data})
	}
	return docs, nil
}

func readStatus(path string) (status.Table, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler planilha de situação: %w", err)
	}
	return status.LoadTable(bytes.NewReader(data), filepath.Base(path), status.DefaultSchema)
}

func readSchemas(path string) (map[rules.TableKind]rules.Schema, error) {
	if path == "" {
		return rules.DefaultSchemas(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir esquema: %w", err)
	}
	defer f.Close()
	return rules.LoadSchemas(f)
}

func ruleInputs() ([]rules.Input, error) {
	paths := map[rules.TableKind]string{
		rules.TableICMS:      icmsTable,
		rules.TableIPI:       ipiTable,
		rules.TablePISCOFINS: pisCofinsTable,
		rules.TableDIFAL:     difalTable,
	}
	var inputs []rules.Input
	for _, kind := range rules.TableKinds {
		path := paths[kind]
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("erro ao ler tabela %s: %w", kind, err)
		}
		inputs = append(inputs, rules.Input{Kind: kind, Filename: filepath.Base(path), Reader: bytes.NewReader(data)})
	}
	return inputs, nil
}

func writeOutput(stdout io.Writer, rep *report.Report) error {
	if outputPath == "" {
		return printSummary(stdout, rep)
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".xlsx":
		if err := export.WriteXLSX(&buf, rep); err != nil {
			return err
		}
	case ".json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("erro ao gerar JSON: %w", err)
		}
	case ".csv":
		if csvCategory == "" {
			return errors.New("saída .csv exige --categoria")
		}
		if err := export.WriteCSV(&buf, rep, domain.Category(strings.ToUpper(csvCategory))); err != nil {
			return err
		}
	default:
		return fmt.Errorf("extensão de saída não suportada: %s", outputPath)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("erro ao gravar %s: %w", outputPath, err)
	}
	fmt.Fprintf(stdout, "Relatório gravado em %s (execução %s)\n", outputPath, rep.RunID)
	return nil
}

func printSummary(out io.Writer, rep *report.Report) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Execução\t%s\n", rep.RunID)
	fmt.Fprintf(w, "Notas de entrada\t%d\n", rep.Summary.Documents[domain.FlowInbound])
	fmt.Fprintf(w, "Notas de saída\t%d\n", rep.Summary.Documents[domain.FlowOutbound])
	fmt.Fprintf(w, "Notas ignoradas\t%d\n", rep.Summary.Failures)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TRIBUTO\tCORRETO\tDIVERGENTE\tSEM REGRA\tCANCELADA\tCOMPLEMENTO")
	for _, cat := range domain.Categories {
		o, ok := rep.Summary.Outcomes[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.2f\n", cat,
			o[domain.OutcomeCorrect], o[domain.OutcomeDivergent], o[domain.OutcomeRuleMissing],
			o[domain.OutcomeDocumentCancelled], rep.Summary.Complements[cat])
	}
	fmt.Fprintf(w, "TOTAL\t\t\t\t\t%.2f\n", rep.Summary.Total)

	if len(rep.Unavailable) > 0 {
		fmt.Fprintln(w)
		for _, u := range rep.Unavailable {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Category, u.State, u.Reason)
		}
	}

	lines := make([]string, 0, len(rep.Summary.Lines))
	for l := range rep.Summary.Lines {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	if len(lines) > 0 {
		fmt.Fprintln(w)
		for _, l := range lines {
			fmt.Fprintf(w, "%s\t%d\n", l, rep.Summary.Lines[l])
		}
	}
	return w.Flush()
}
