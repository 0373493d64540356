// Package sales serves the vigil's earnings. Sales are written by the
// payment backend; this package only reads them.
package sales

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/rs/zerolog"

	"vigila/cache"
	"vigila/models"
	"vigila/resource"
	"vigila/utils"
	"vigila/workspace"
)

type Handler struct {
	*resource.Handler[models.Sale]
}

func NewHandler(spaces *workspace.Registry, hub resource.Notifier, logger zerolog.Logger) *Handler {
	return &Handler{&resource.Handler[models.Sale]{
		Domain: workspace.Sales,
		Spaces: spaces,
		Store:  func(w *workspace.Workspace) *cache.Store[models.Sale] { return w.Sales },
		Feed:   hub,
		Logger: logger.With().Str("pkg", "sales").Logger(),
		Match: func(s models.Sale, q string) bool {
			return utils.ContainsIgnoreCase(s.Status, q) || utils.ContainsIgnoreCase(s.BookingID, q)
		},
	}}
}

// Receipt handles GET /sales/:id/receipt
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, ws, ok := resource.Caller(w, r, h.Spaces)
	if !ok {
		return
	}
	if ws.Sales == nil {
		utils.RespondWithError(w, http.StatusForbidden, "Not available for this role")
		return
	}

	sale, err := ws.Sales.ReadDetail(r.Context(), ps.ByName("id"), utils.ForceFlag(r))
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}

	pdf, err := RenderReceipt(sale, s.Username)
	if err != nil {
		h.Logger.Error().Err(err).Str("sale", sale.ID).Msg("render receipt failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=receipt-"+sale.ID+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// RenderReceipt lays out sale as a one-page statement for payee.
func RenderReceipt(sale models.Sale, payee string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 10, "Receipt: "+sale.ID)
	pdf.Ln(8)
	pdf.Cell(0, 10, "Booking: "+sale.BookingID)
	pdf.Ln(8)
	if payee != "" {
		pdf.Cell(0, 10, "Payee: "+payee)
		pdf.Ln(8)
	}
	if !sale.PaidAt.IsZero() {
		pdf.Cell(0, 10, "Paid: "+sale.PaidAt.Format("2006-01-02"))
		pdf.Ln(8)
	}
	pdf.Ln(4)

	rows := [][2]string{
		{"Amount", money(sale.Amount, sale.Currency)},
		{"Fee", money(-sale.Fee, sale.Currency)},
		{"Net", money(sale.Net(), sale.Currency)},
	}
	for i, row := range rows {
		if i == len(rows)-1 {
			pdf.SetFont("Arial", "B", 12)
		}
		pdf.CellFormat(60, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 8, row[1], "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(v float64, currency string) string {
	if currency == "" {
		currency = "EUR"
	}
	return fmt.Sprintf("%.2f %s", v, currency)
}
