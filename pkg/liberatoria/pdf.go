/**
 * @description
 * This package renders a printable liberatoria (signed-waiver) batch as a PDF:
 * one page per paid participant, with the event name, the participant's data
 * and a signature line. The office prints the batch and collects signatures at
 * the event check-in desk.
 */
package liberatoria

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// Participant is one waiver page: a quota-paid subscriber joined with their profile.
type Participant struct {
	FirstName     string
	LastName      string
	Email         string
	ESNCardNumber string
}

// Batch is everything needed to render one printable waiver batch.
type Batch struct {
	EventName    string
	GeneratedAt  time.Time
	Participants []Participant
}

// Filename returns the suggested download filename for the batch.
func (b Batch) Filename() string {
	return fmt.Sprintf("liberatorie_%s.pdf", b.GeneratedAt.Format("2006-01-02"))
}

const waiverBody = "The undersigned releases and holds harmless ESN Politecnico Milano, " +
	"its board and its volunteers from any liability for personal injury, loss or " +
	"damage to property arising from participation in the above event, and consents " +
	"to the use of photographs taken during the event for association purposes."

// Render writes the batch PDF to w, one page per participant.
func Render(b Batch, w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Liberatorie - %s", b.EventName), true)

	for _, p := range b.Participants {
		pdf.AddPage()

		pdf.SetFont("Helvetica", "B", 18)
		pdf.CellFormat(0, 12, "Liberatoria", "", 1, "C", false, 0, "")

		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, b.EventName, "", 1, "C", false, 0, "")
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(45, 8, "Participant:", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s %s", p.FirstName, p.LastName), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(45, 8, "Email:", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, p.Email, "", 1, "L", false, 0, "")

		if p.ESNCardNumber != "" {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.CellFormat(45, 8, "ESNcard:", "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 12)
			pdf.CellFormat(0, 8, p.ESNCardNumber, "", 1, "L", false, 0, "")
		}

		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, waiverBody, "", "J", false)

		pdf.Ln(18)
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(60, 8, fmt.Sprintf("Date: %s", b.GeneratedAt.Format("02/01/2006")), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, "Signature: ______________________________", "", 1, "R", false, 0, "")
	}

	return pdf.Output(w)
}
