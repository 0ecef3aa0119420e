// Package resolver decides which model variant the service runs with and
// which language each generation request is actually served in.
//
// The startup resolution runs exactly once, before any request handling
// begins; its result is passed around by value and never mutated, so the
// per-request resolution needs no locking.
package resolver

import (
	"fmt"

	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/language"
)

// Recognized device settings.
const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceMPS  = "mps"
	DeviceCPU  = "cpu"
)

// Warning detail formats.
const (
	detailMultilingualUnavailable = "multilingual model requested but not available " +
		"in the engine runtime; using English-only model. " +
		"Upgrade the chatterbox-tts package in the engine to enable multilingual support"
	detailFmtLanguageDowngraded = "language %q requested but the English-only model " +
		"is active; generating in English"
	detailFmtDeviceFallback = "device %q requested but not functional; falling back to cpu"
	detailFmtDeviceInvalid  = "invalid device setting %q; auto-detection resolved to %q"
)

// Selection is the effective model selection computed at startup. A change in
// the underlying configuration requires a full process restart; the loaded
// model is too expensive to swap under in-flight requests.
type Selection struct {
	Kind     core.ModelKind
	Warnings []core.Warning
}

// ResolveStartupModel decides which model variant to serve. The multilingual
// model is active if and only if it was requested in configuration and the
// engine probe confirmed it is available. Every other combination falls back
// to the English-only model; the fallback path produces a warning, the
// explicit English-only choice does not.
//
// This function never fails: the absence of the multilingual capability is
// always recoverable. A runtime with no model at all surfaces as
// core.ErrModelUnavailable from the capabilities probe, before this runs.
func ResolveStartupModel(useMultilingual, multilingualAvailable bool) Selection {
	if !useMultilingual {
		return Selection{Kind: core.KindEnglishOnly, Warnings: nil}
	}

	if multilingualAvailable {
		return Selection{Kind: core.KindMultilingual, Warnings: nil}
	}

	return Selection{
		Kind: core.KindEnglishOnly,
		Warnings: []core.Warning{{
			Code:   core.WarnMultilingualUnavailable,
			Detail: detailMultilingualUnavailable,
		}},
	}
}

// ResolveLanguage maps a requested language onto the language the active
// model can actually honor. With the multilingual model the request passes
// through unchanged. With the English-only model every non-English request
// degrades to English and produces a warning carrying the requested code.
//
// The function is pure and total: a mismatched request never blocks
// generation, it degrades observably.
func ResolveLanguage(kind core.ModelKind, requested string) (string, *core.Warning) {
	if kind == core.KindMultilingual {
		return requested, nil
	}

	if requested == language.English {
		return language.English, nil
	}

	return language.English, &core.Warning{
		Code:   core.WarnLanguageDowngraded,
		Detail: fmt.Sprintf(detailFmtLanguageDowngraded, requested),
	}
}

// ResolveDevice maps the configured device setting onto a functional device
// reported by the engine. "auto" picks the best functional accelerator,
// preferring cuda, then mps, then cpu. An explicit accelerator that is not
// functional falls back to cpu with a warning. An unrecognized setting is
// treated as "auto" with a warning.
func ResolveDevice(setting string, functional []string) (string, *core.Warning) {
	switch setting {
	case DeviceAuto:
		return autoDetectDevice(functional), nil
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceCUDA, DeviceMPS:
		if deviceFunctional(setting, functional) {
			return setting, nil
		}

		return DeviceCPU, &core.Warning{
			Code:   core.WarnDeviceFallback,
			Detail: fmt.Sprintf(detailFmtDeviceFallback, setting),
		}
	default:
		resolved := autoDetectDevice(functional)

		return resolved, &core.Warning{
			Code:   core.WarnDeviceInvalid,
			Detail: fmt.Sprintf(detailFmtDeviceInvalid, setting, resolved),
		}
	}
}

func autoDetectDevice(functional []string) string {
	for _, candidate := range []string{DeviceCUDA, DeviceMPS} {
		if deviceFunctional(candidate, functional) {
			return candidate
		}
	}

	return DeviceCPU
}

func deviceFunctional(device string, functional []string) bool {
	for _, f := range functional {
		if f == device {
			return true
		}
	}

	return false
}
