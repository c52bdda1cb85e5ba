// Package provider implements machine translation backends used to fill
// locale bundles.
package provider

import "github.com/ZaguanLabs/dramabox"

// MachineTranslator is an alias to the main package interface for convenience.
type MachineTranslator = dramabox.MachineTranslator

// TranslateRequest is an alias to the main package type.
type TranslateRequest = dramabox.TranslateRequest
