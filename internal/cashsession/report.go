package cashsession

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report renders the plain-text end-of-shift summary: opening float,
// per-method theoretical vs declared with variance, and the closing total.
func (s *Service) Report(ctx context.Context, sessionID uuid.UUID) (string, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	methods, err := s.catalog.PaymentMethods(ctx)
	if err != nil {
		return "", err
	}
	theoretical, err := s.repo.TheoreticalTotals(ctx, sessionID)
	if err != nil {
		return "", err
	}
	declared := make(map[uuid.UUID]Declaration, len(session.Declarations))
	for _, d := range session.Declarations {
		declared[d.MethodID] = d
	}

	p := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString("=== CASH SESSION REPORT ===\n")
	p.Fprintf(&b, "Session:       %s\n", session.ID)
	p.Fprintf(&b, "Status:        %s\n", session.Status)
	p.Fprintf(&b, "Opened:        %s by %s\n", session.OpenedAt.Format("2006-01-02 15:04"), session.OpenedBy)
	if session.ClosedAt != nil {
		p.Fprintf(&b, "Closed:        %s by %s\n", session.ClosedAt.Format("2006-01-02 15:04"), session.ClosedBy)
	}
	p.Fprintf(&b, "Opening float: $%.2f\n", session.OpeningFloat)
	b.WriteString("---------------------------\n")

	totalTheoretical := decimal.Zero
	totalDeclared := decimal.Zero
	for _, method := range methods {
		if !method.IsActive {
			continue
		}
		expected := decimal.NewFromFloat(theoretical[method.ID])
		totalTheoretical = totalTheoretical.Add(expected)
		p.Fprintf(&b, "%-14s expected $%.2f", method.Name, theoretical[method.ID])
		if d, ok := declared[method.ID]; ok {
			counted := decimal.NewFromFloat(d.Amount)
			totalDeclared = totalDeclared.Add(counted)
			variance := counted.Sub(expected)
			p.Fprintf(&b, "  counted $%.2f  variance %s", d.Amount, variance.StringFixed(2))
			if d.Justification != "" {
				p.Fprintf(&b, "  (%s)", d.Justification)
			}
		} else {
			b.WriteString("  counted -")
		}
		b.WriteString("\n")
	}

	b.WriteString("---------------------------\n")
	p.Fprintf(&b, "Expected total: $%s\n", totalTheoretical.StringFixed(2))
	p.Fprintf(&b, "Declared total: $%s\n", totalDeclared.StringFixed(2))
	p.Fprintf(&b, "Variance:       $%s\n", totalDeclared.Sub(totalTheoretical).StringFixed(2))
	return b.String(), nil
}
