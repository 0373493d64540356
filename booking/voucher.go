package booking

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"vigila/models"
	"vigila/resource"
	"vigila/session"
	"vigila/utils"
)

var ErrBadVoucher = errors.New("invalid voucher")

// VoucherPayload returns bookingID|vigilID|consumerID|start|signature. The
// vigil scans it at the door to check the booking.
func VoucherPayload(secret []byte, b models.Booking) string {
	data := fmt.Sprintf("%s|%s|%s|%d", b.ID, b.VigilID, b.ConsumerID, b.StartDate.Unix())
	return data + "|" + sign(secret, data)
}

// VerifyVoucher checks the signature of payload and returns the booking ID
// it was issued for.
func VerifyVoucher(secret []byte, payload string) (string, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 5 || parts[0] == "" {
		return "", ErrBadVoucher
	}
	data := strings.Join(parts[:4], "|")
	if !hmac.Equal([]byte(parts[4]), []byte(sign(secret, data))) {
		return "", ErrBadVoucher
	}
	return parts[0], nil
}

func sign(secret []byte, data string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Voucher handles GET /bookings/:id/voucher
func (h *Handler) Voucher(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, ws, ok := resource.Caller(w, r, h.Spaces)
	if !ok {
		return
	}
	if ws.Bookings == nil {
		utils.RespondWithError(w, http.StatusForbidden, "Not available for this role")
		return
	}

	b, err := ws.Bookings.ReadDetail(r.Context(), ps.ByName("id"), false)
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	if b.Status != models.BookingConfirmed {
		utils.RespondWithError(w, http.StatusConflict, "Vouchers are issued for confirmed bookings only")
		return
	}

	pdf, err := RenderVoucher(b, VoucherPayload(h.secret, b))
	if err != nil {
		h.Logger.Error().Err(err).Str("booking", b.ID).Msg("render voucher failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=voucher-"+b.ID+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// Redeem handles POST /bookings/:id/voucher. The vigil of the booking posts
// the scanned payload; a valid voucher completes the booking, so it can be
// redeemed once.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := session.FromContext(r.Context())
	if s == nil || s.Role != session.RoleVigil {
		utils.RespondWithError(w, http.StatusForbidden, "Only the vigil can redeem a voucher")
		return
	}
	var in struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	id, err := VerifyVoucher(h.secret, in.Payload)
	if err != nil || id != ps.ByName("id") {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, ErrBadVoucher.Error())
		return
	}

	_, ws, ok := resource.Caller(w, r, h.Spaces)
	if !ok {
		return
	}
	b, err := ws.Bookings.ReadDetail(r.Context(), id, true)
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	if b.Status != models.BookingConfirmed {
		utils.RespondWithError(w, http.StatusConflict, "Booking is "+b.Status)
		return
	}
	b, err = h.transition(r.Context(), b, models.BookingCompleted)
	if err != nil {
		h.Logger.Error().Err(err).Str("booking", id).Msg("redeem voucher failed")
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	h.Logger.Info().Str("booking", id).Str("vigil", s.UserID).Msg("voucher redeemed")
	utils.RespondWithJSON(w, http.StatusOK, b)
}

// RenderVoucher lays out b on one A4 page with payload as a QR code.
func RenderVoucher(b models.Booking, payload string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Booking Voucher")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		"Booking: " + b.ID,
		"Service: " + b.ServiceID,
		"From: " + b.StartDate.Format("2006-01-02 15:04"),
		"To: " + b.EndDate.Format("2006-01-02 15:04"),
		fmt.Sprintf("Price: %.2f", b.Price),
	}
	if b.Address != "" {
		lines = append(lines, "Address: "+b.Address)
	}
	for _, l := range lines {
		pdf.Cell(0, 10, l)
		pdf.Ln(8)
	}

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 40, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
