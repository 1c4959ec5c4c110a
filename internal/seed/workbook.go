// Package seed loads products and their stock movements from a stock card
// workbook: one summary sheet listing products, plus an optional sheet per
// product with its dated inflows and outflows.
package seed

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/ledger"
	"kartoteka-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultUnit     = "szt"
	DefaultDocument = "Import"
)

// header aliases, lower-case
var (
	nameHeaders     = []string{"nazwa produktu", "nazwa", "product name", "name"}
	unitHeaders     = []string{"jednostka miary", "jednostka", "unit"}
	stockHeaders    = []string{"aktualny stan", "stan", "stock"}
	dateHeaders     = []string{"data", "date"}
	documentHeaders = []string{"dokument", "document"}
	inflowHeaders   = []string{"przychód", "przychod", "income", "inflow"}
	outflowHeaders  = []string{"rozchód", "rozchod", "outcome", "outflow"}
)

type Result struct {
	Products int      `json:"products"`
	Entries  int      `json:"entries"`
	Skipped  []string `json:"skipped"`
	Warnings []string `json:"warnings"`
}

func (r *Result) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[WARN] seed: %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// LoadFile opens path and seeds from it.
func LoadFile(ctx context.Context, e *ledger.Engine, path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperr.Validation("seed.LoadFile", "cannot open workbook: %v", err)
	}
	defer f.Close()
	return Load(ctx, e, f)
}

// Load creates every product of the summary sheet through the ledger engine.
// Products whose name already exists are skipped. A product with its own
// sheet gets that sheet's movements in date order; otherwise its stock
// column becomes the opening balance. Rejected movements are reported as
// warnings and do not stop the load.
func Load(ctx context.Context, e *ledger.Engine, f *excelize.File) (*Result, error) {
	const op = "seed.Load"

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation(op, "workbook has no sheets")
	}
	summary := summarySheet(sheets)
	rows, err := f.GetRows(summary, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperr.Validation(op, "cannot read sheet %q: %v", summary, err)
	}

	hdr, nameCol := findHeader(rows, nameHeaders)
	if hdr < 0 {
		return nil, apperr.Validation(op, "sheet %q has no product name column", summary)
	}
	unitCol := column(rows[hdr], unitHeaders)
	stockCol := column(rows[hdr], stockHeaders)

	res := &Result{Skipped: []string{}, Warnings: []string{}}
	for i := hdr + 1; i < len(rows); i++ {
		row := rows[i]
		if skipRow(row) {
			continue
		}
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		unit := cell(row, unitCol)
		if unit == "" {
			unit = DefaultUnit
		}
		stock, err := parseQuantity(cell(row, stockCol))
		if err != nil {
			res.warn("%s: stock %q is not a number, using 0", name, cell(row, stockCol))
		}

		sheet := productSheet(sheets, summary, name)
		opening := stock
		if sheet != "" {
			opening = decimal.Zero
		}
		p, err := e.CreateProduct(ctx, ledger.ProductInput{Name: name, Unit: unit}, opening)
		if err != nil {
			if apperr.IsConflict(err) || apperr.IsValidation(err) {
				res.Skipped = append(res.Skipped, name)
				continue
			}
			return res, err
		}
		res.Products++
		if opening.IsPositive() {
			res.Entries++
		}

		if sheet != "" {
			n, err := loadMovements(ctx, e, f, sheet, p, res)
			if err != nil {
				return res, err
			}
			res.Entries += n
		}
	}
	return res, nil
}

type movement struct {
	row      int
	date     time.Time
	document string
	dir      models.Direction
	qty      decimal.Decimal
}

func loadMovements(ctx context.Context, e *ledger.Engine, f *excelize.File, sheet string, p *models.Product, res *Result) (int, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		res.warn("%s: cannot read sheet %q: %v", p.Name, sheet, err)
		return 0, nil
	}
	hdr, dateCol := findHeader(rows, dateHeaders)
	if hdr < 0 {
		res.warn("%s: sheet %q has no date column", p.Name, sheet)
		return 0, nil
	}
	docCol := column(rows[hdr], documentHeaders)
	inCol := column(rows[hdr], inflowHeaders)
	outCol := column(rows[hdr], outflowHeaders)

	var moves []movement
	for i := hdr + 1; i < len(rows); i++ {
		row := rows[i]
		if skipRow(row) {
			continue
		}
		date, err := parseDate(f, cell(row, dateCol))
		if err != nil {
			res.warn("%s row %d: %v", sheet, i+1, err)
			continue
		}
		doc := cell(row, docCol)
		if doc == "" {
			doc = DefaultDocument
		}
		for _, side := range []struct {
			col int
			dir models.Direction
		}{{inCol, models.Inflow}, {outCol, models.Outflow}} {
			qty, err := parseQuantity(cell(row, side.col))
			if err != nil {
				res.warn("%s row %d: %v", sheet, i+1, err)
				continue
			}
			if qty.IsPositive() {
				moves = append(moves, movement{row: i + 1, date: date, document: doc, dir: side.dir, qty: qty})
			}
		}
	}
	sort.SliceStable(moves, func(a, b int) bool { return moves[a].date.Before(moves[b].date) })

	n := 0
	for _, m := range moves {
		_, err := e.AppendEntry(ctx, p.ID, ledger.EntryInput{Date: m.date, Document: m.document, Direction: m.dir, Quantity: m.qty})
		if err != nil {
			if apperr.IsInsufficientStock(err) || apperr.IsValidation(err) {
				res.warn("%s row %d: %v", sheet, m.row, err)
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func summarySheet(sheets []string) string {
	for _, s := range sheets {
		l := strings.ToLower(s)
		if strings.Contains(l, "lista produktów") || strings.Contains(l, "products") {
			return s
		}
	}
	return sheets[0]
}

// productSheet matches by exact name first, then by containment either way.
func productSheet(sheets []string, summary, product string) string {
	want := strings.ToLower(strings.TrimSpace(product))
	for _, s := range sheets {
		if s != summary && strings.ToLower(strings.TrimSpace(s)) == want {
			return s
		}
	}
	for _, s := range sheets {
		l := strings.ToLower(strings.TrimSpace(s))
		if s != summary && l != "" && (strings.Contains(l, want) || strings.Contains(want, l)) {
			return s
		}
	}
	return ""
}

// findHeader returns the first row holding one of names and that column.
func findHeader(rows [][]string, names []string) (row, col int) {
	for i, r := range rows {
		if c := column(r, names); c >= 0 {
			return i, c
		}
	}
	return -1, -1
}

func column(row []string, names []string) int {
	for _, n := range names {
		for i, v := range row {
			if strings.ToLower(strings.TrimSpace(v)) == n {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// skipRow drops empty rows and repeated "Lp." header rows.
func skipRow(row []string) bool {
	for _, v := range row {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		return strings.EqualFold(v, "Lp.") || strings.EqualFold(v, "Lp")
	}
	return true
}

func parseQuantity(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	return d, nil
}

var dateLayouts = []string{time.DateOnly, "02.01.2006", "2006.01.02", "02/01/2006", time.RFC3339}

// parseDate accepts Excel serial dates and the usual written layouts.
func parseDate(f *excelize.File, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is missing")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, dateSystem1904(f))
		if err != nil {
			return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date %q", s)
}

func dateSystem1904(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}
