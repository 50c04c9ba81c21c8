package productgen

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/infra"
)

var defaultAspectRatios = []string{"1:1", "3:4", "4:3", "16:9", "9:16"}

var titleCaser = cases.Title(language.English)

// DisplayName renders a provider key as a human-readable name, e.g.
// "google_genai" becomes "Google Genai".
func DisplayName(name string) string {
	return titleCaser.String(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}

// ProviderInfos describes every provider the file configures, annotated with
// the capabilities of its registered type. Entries whose type is not
// registered are skipped.
func ProviderInfos(cfg *FileConfig, logger infra.Logger) []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(cfg.Providers))
	for _, name := range cfg.providerNames() {
		entry := cfg.Providers[name]
		if entry.Type == "" {
			entry.Type = name
		}
		gen, err := New(entry, logger)
		if err != nil {
			continue
		}
		ratios := entry.SupportedAspectRatios
		if len(ratios) == 0 {
			ratios = defaultAspectRatios
		}
		infos = append(infos, ProviderInfo{
			Name:         name,
			DisplayName:  DisplayName(name),
			Capabilities: gen.Capabilities(),
			AspectRatios: ratios,
		})
	}
	return infos
}
