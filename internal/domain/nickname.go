package domain

import "strings"

// ReplaceNicknames substitutes model identifiers appearing in finalized
// output text with their provider's display nickname. Pure cosmetic
// post-processing over already-complete text; it has no bearing on
// streaming.
func ReplaceNicknames(providers []ProviderDescriptor, text string) string {
	if text == "" {
		return text
	}
	for _, provider := range providers {
		if provider.Nickname == "" {
			continue
		}
		for _, model := range provider.Models {
			text = strings.ReplaceAll(text, model.ID, provider.Nickname)
		}
	}
	return text
}
