package app

import (
	"fmt"

	"whale-alerts/internal/extractor"
)

// Extract prints the per-asset totals found in text without touching the network or store.
func (a *App) Extract(text string) error {
	amounts, err := extractor.Extract(text)
	if err != nil {
		return err
	}

	w := a.out()
	fmt.Fprintf(w, "tagged: %t\n", extractor.HasAssetTag(text))
	fmt.Fprintf(w, "clean:  %s\n", sanitizeInline(extractor.CleanHTML(text)))
	for _, sym := range extractor.Symbols {
		fmt.Fprintf(w, "%-5s %s\n", sym, amounts.Get(sym).String())
	}
	return nil
}
