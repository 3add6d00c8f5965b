package device

import (
	"fmt"
	"strings"
	"time"
)

// ResolveTemplate substitutes ${...} tokens in topic and client ID
// patterns. Recognised tokens: ${deviceId}, ${timestamp} (RFC 3339 UTC
// at call time), ${modelId}, then one token per last-telemetry
// attribute, then one per custom-state key. Built-in tokens win over
// telemetry keys, telemetry keys over custom state. Substitution is a
// single non-recursive pass; unrecognised tokens pass through
// untouched.
//
// Resolution is per-use, never cached, so ${timestamp} advances
// between calls.
func ResolveTemplate(tpl, deviceID, modelID string, lastTelemetry, customState map[string]any) string {
	if !strings.Contains(tpl, "${") {
		return tpl
	}

	pairs := make([]string, 0, 6+2*(len(lastTelemetry)+len(customState)))
	pairs = append(pairs,
		"${deviceId}", deviceID,
		"${timestamp}", time.Now().UTC().Format(time.RFC3339),
		"${modelId}", modelID,
	)
	for key, value := range lastTelemetry {
		pairs = append(pairs, "${"+key+"}", fmt.Sprintf("%v", value))
	}
	for key, value := range customState {
		pairs = append(pairs, "${"+key+"}", fmt.Sprintf("%v", value))
	}

	return strings.NewReplacer(pairs...).Replace(tpl)
}
