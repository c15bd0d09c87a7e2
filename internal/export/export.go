// Package export grava o relatório de auditoria em XLSX e CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/report"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/domain"
)

// Nomes das abas fixas da planilha.
const (
	SheetInbound  = "Entradas"
	SheetOutbound = "Saídas"
	SheetFailures = "Falhas"
)

// WriteXLSX grava uma aba por tributo auditado, as abas de itens lidos por
// fluxo e a aba de falhas.
func WriteXLSX(w io.Writer, rep *report.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	first := ""
	for _, cat := range domain.Categories {
		if _, ok := rep.Categories[cat]; !ok {
			continue
		}
		header, rows := rep.Table(cat)
		if err := writeSheet(f, string(cat), header, rows); err != nil {
			return err
		}
		if first == "" {
			first = string(cat)
		}
	}

	header, rows := rep.ItemTable(domain.FlowInbound)
	if err := writeSheet(f, SheetInbound, header, rows); err != nil {
		return err
	}
	header, rows = rep.ItemTable(domain.FlowOutbound)
	if err := writeSheet(f, SheetOutbound, header, rows); err != nil {
		return err
	}
	header, rows = rep.FailureTable()
	if err := writeSheet(f, SheetFailures, header, rows); err != nil {
		return err
	}

	// A aba padrão do excelize só sai se nenhuma outra tiver sido criada antes.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("erro ao remover aba padrão: %w", err)
	}
	if first == "" {
		first = SheetInbound
	}
	if idx, err := f.GetSheetIndex(first); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("erro ao gravar planilha: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, header []string, rows [][]string) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("erro ao criar aba %s: %w", name, err)
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("erro ao abrir aba %s: %w", name, err)
	}
	if err := sw.SetRow("A1", toCells(header)); err != nil {
		return fmt.Errorf("erro ao gravar cabeçalho de %s: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return fmt.Errorf("erro ao gravar linha %d de %s: %w", i+2, name, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("erro ao finalizar aba %s: %w", name, err)
	}
	return nil
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

// WriteCSV grava a aba de um tributo em CSV separado por ';' e codificado em
// Windows-1252, o formato que os sistemas contábeis importam.
func WriteCSV(w io.Writer, rep *report.Report, cat domain.Category) error {
	encoder := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	tw := transform.NewWriter(w, encoder)
	writer := csv.NewWriter(tw)
	writer.Comma = ';'

	header, rows := rep.Table(cat)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("erro ao gravar cabeçalho: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("erro ao gravar linha: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("erro ao gravar CSV: %w", err)
	}
	return tw.Close()
}
