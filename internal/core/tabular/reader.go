// Package tabular lê as planilhas e CSVs usados como tabelas de regras e de
// situação das notas, devolvendo sempre uma matriz de células em texto.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrEmpty indica que a entrada não tem nenhuma linha.
var ErrEmpty = errors.New("arquivo sem linhas")

// Read lê a primeira aba (ou o CSV inteiro) de um arquivo tabular.
func Read(r io.Reader, filename string) ([][]string, error) {
	return ReadSheet(r, filename, "")
}

// ReadSheet lê a aba indicada. Se a aba não existir, usa a primeira.
func ReadSheet(r io.Reader, filename, sheet string) ([][]string, error) {
	var (
		rows [][]string
		err  error
	)
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r, sheet)
	case ".xls":
		rows, err = readXLS(r, sheet)
	case ".csv", ".txt", "":
		rows, err = readCSV(r)
	default:
		return nil, fmt.Errorf("formato de arquivo não suportado: %s", ext)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

func readXLSX(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir planilha .xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	name := sheets[0]
	for _, s := range sheets {
		if sheet != "" && strings.EqualFold(s, sheet) {
			name = s
			break
		}
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler aba %q: %w", name, err)
	}
	return rows, nil
}

func readXLS(r io.Reader, sheet string) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		// Muitos sistemas exportam .xlsx com extensão .xls.
		if _, errX := excelize.OpenReader(bytes.NewReader(data)); errX == nil {
			return readXLSX(bytes.NewReader(data), sheet)
		}
		return nil, fmt.Errorf("erro ao abrir planilha .xls: %w", err)
	}

	// O leitor de .xls não expõe nomes de aba de forma confiável; usa a primeira.
	sheets := workbook.GetSheets()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	var rows [][]string
	for _, row := range sheets[0].GetRows() {
		var cols []string
		for _, cell := range row.GetCols() {
			cols = append(cols, cell.GetString())
		}
		rows = append(rows, cols)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.ISO8859_1.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.Comma = sniffDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("erro ao ler CSV: %w", err)
	}
	return records, nil
}

// sniffDelimiter escolhe entre ';' (padrão dos sistemas brasileiros) e ','
// olhando apenas a primeira linha.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.Count(first, []byte{','}) > bytes.Count(first, []byte{';'}) {
		return ','
	}
	return ';'
}

// Cell devolve a célula da coluna idx sem espaços, ou "" se a linha for curta.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Width devolve a quantidade de colunas da linha mais larga.
func Width(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}
