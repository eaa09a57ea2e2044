package domain

import "time"

// Capability is an ordered epoch tier gating which features participants may
// use while the epoch is active.
type Capability int

const (
	// CapabilityUnspecified represents an invalid capability value.
	CapabilityUnspecified Capability = iota
	// CapabilityPresence allows discovery of nearby participants only.
	CapabilityPresence
	// CapabilitySignals adds lightweight messaging on top of presence.
	CapabilitySignals
	// CapabilityEphemeralData adds epoch-scoped media on top of signals.
	CapabilityEphemeralData
)

// String returns the lowercase capability name.
func (c Capability) String() string {
	switch c {
	case CapabilityPresence:
		return "presence"
	case CapabilitySignals:
		return "signals"
	case CapabilityEphemeralData:
		return "ephemeral-data"
	default:
		return "unspecified"
	}
}

// ParseCapability maps a lowercase capability name back to its tier.
func ParseCapability(name string) (Capability, bool) {
	switch name {
	case "presence":
		return CapabilityPresence, true
	case "signals":
		return CapabilitySignals, true
	case "ephemeral-data":
		return CapabilityEphemeralData, true
	default:
		return CapabilityUnspecified, false
	}
}

// Feature is one participant-facing feature gated by epoch capability.
type Feature string

const (
	// FeatureDiscovery surfaces nearby participants.
	FeatureDiscovery Feature = "discovery"
	// FeatureMessaging exchanges signals between participants.
	FeatureMessaging Feature = "messaging"
	// FeatureMedia shares epoch-scoped ephemeral media.
	FeatureMedia Feature = "media"
)

// requiredCapability maps each feature to its minimum tier.
func (f Feature) requiredCapability() Capability {
	switch f {
	case FeatureDiscovery:
		return CapabilityPresence
	case FeatureMessaging:
		return CapabilitySignals
	case FeatureMedia:
		return CapabilityEphemeralData
	default:
		return CapabilityEphemeralData + 1 // unknown features are never allowed
	}
}

// Includes reports whether the tier covers the given feature.
// Tiers are cumulative: a higher tier includes every lower tier's features.
func (c Capability) Includes(f Feature) bool {
	required := f.requiredCapability()
	return c >= required && c > CapabilityUnspecified
}

// Allows reports whether the feature is usable on the epoch at the given
// instant. Every feature requires the epoch to be active.
func (e Epoch) Allows(f Feature, now time.Time) bool {
	return e.StateAt(now) == StateActive && e.Capability.Includes(f)
}

// Joinable reports whether the epoch accepts joins at the given instant.
func (e Epoch) Joinable(now time.Time) bool {
	return e.StateAt(now).Joinable()
}
