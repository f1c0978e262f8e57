package resolver

import (
	"fmt"
	"strings"
	"time"

	"aura.dev/aura/internal/domain"
)

// semanticContext renders the audit text for a fact. Nothing downstream
// parses it.
func semanticContext(f domain.Fact, shadowGap time.Duration) string {
	var b strings.Builder
	switch {
	case f.HasInconsistency:
		fmt.Fprintf(&b, "Inventory includes %d confirmed on-shelf units", f.QtyOnShelf)
		if f.InTransitQty > 0 {
			fmt.Fprintf(&b, " and %d units in-transit", f.InTransitQty)
		}
		fmt.Fprintf(&b, ". WARNING: %d units marked as delivered but not yet counted in warehouse stock (shadow stock, delivery %.1fh after last count)",
			f.ShadowStockQty, shadowGap.Hours())
	case f.InTransitQty > 0:
		fmt.Fprintf(&b, "Inventory includes %d confirmed on-shelf units and %d units currently in-transit.",
			f.QtyOnShelf, f.InTransitQty)
	case f.ShelfLastUpdated == nil:
		b.WriteString("No warehouse count recorded for this item.")
	default:
		fmt.Fprintf(&b, "Inventory reflects %d confirmed on-shelf units only.", f.QtyOnShelf)
	}
	if f.LateEventCount > 0 {
		fmt.Fprintf(&b, " %d late-arriving event(s) included.", f.LateEventCount)
	}
	return b.String()
}
