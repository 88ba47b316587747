/*
statement.go - Monthly payroll statement PDF

PURPOSE:
  GET /api/payroll/{year}/{month}/statement.pdf renders the month's
  reconciled payroll as a one-table A4 document the salon manager can
  print or send to the accountant: one line per employee with the charge
  technicien split, what was paid and what remains, then the totals.

  Figures are taken from payroll.Service.Month, exactly as the JSON view
  returns them.
*/
package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/salonops/finance-engine/payroll"
)

type statementColumn struct {
	title string
	width float64
	align string
}

var statementColumns = []statementColumn{
	{"Employee", 52, "L"},
	{"Net", 25, "R"},
	{"Charges", 25, "R"},
	{"Tax %", 16, "R"},
	{"Charge tech.", 27, "R"},
	{"Due", 27, "R"},
	{"Paid", 27, "R"},
	{"Remaining", 27, "R"},
	{"Status", 22, "L"},
}

func (h *Handler) PayrollStatement(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	view, err := h.Payroll.Month(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	doc, err := renderStatement(view, h.now())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="payroll-%s.pdf"`, month))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func renderStatement(view payroll.MonthView, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Payroll statement "+view.Summary.Month.String(), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Payroll statement - "+view.Summary.Month.String())
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, "Generated "+generatedAt.Format("2006-01-02 15:04"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range statementColumns {
		pdf.CellFormat(c.width, 7, c.title, "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, st := range view.Records {
		rec := st.Record
		cells := []string{
			tr(rec.DisplayName()),
			rec.NetSalary.String(),
			rec.Charges.String(),
			rec.TaxPercentage.String(),
			st.ChargeTechnicien.String(),
			st.Due.String(),
			st.TotalPaid.String(),
			st.Remaining.String(),
			string(st.Status),
		}
		for i, c := range statementColumns {
			pdf.CellFormat(c.width, 6, cells[i], "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	s := view.Summary
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(statementColumns[0].width+statementColumns[1].width+statementColumns[2].width+
		statementColumns[3].width+statementColumns[4].width, 7, "Total", "1", 0, "L", true, 0, "")
	pdf.CellFormat(statementColumns[5].width, 7, s.Due.String(), "1", 0, "R", true, 0, "")
	pdf.CellFormat(statementColumns[6].width, 7, s.Paid.String(), "1", 0, "R", true, 0, "")
	pdf.CellFormat(statementColumns[7].width, 7, s.Remaining.String(), "1", 0, "R", true, 0, "")
	pdf.CellFormat(statementColumns[8].width, 7, "", "1", 0, "L", true, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), nil
}
