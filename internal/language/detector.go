// Package language names the language of fetched text as a Postgres text
// search configuration.
package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Default is used whenever detection is inconclusive or unsupported.
const Default = "english"

var regconfigs = map[whatlanggo.Lang]string{
	whatlanggo.Eng: "english",
	whatlanggo.Deu: "german",
	whatlanggo.Rus: "russian",
}

// Detector implements links.LanguageDetector using whatlanggo.
type Detector struct{}

// NewDetector returns a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the regconfig name for text, falling back to Default.
func (Detector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return Default
	}
	info := whatlanggo.Detect(text)
	if name, ok := regconfigs[info.Lang]; ok {
		return name
	}
	return Default
}
