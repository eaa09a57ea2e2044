package domain

import (
	"testing"
	"time"
)

func TestCapabilityIncludes(t *testing.T) {
	tests := []struct {
		capability Capability
		feature    Feature
		want       bool
	}{
		{CapabilityPresence, FeatureDiscovery, true},
		{CapabilityPresence, FeatureMessaging, false},
		{CapabilityPresence, FeatureMedia, false},
		{CapabilitySignals, FeatureDiscovery, true},
		{CapabilitySignals, FeatureMessaging, true},
		{CapabilitySignals, FeatureMedia, false},
		{CapabilityEphemeralData, FeatureDiscovery, true},
		{CapabilityEphemeralData, FeatureMessaging, true},
		{CapabilityEphemeralData, FeatureMedia, true},
		{CapabilityUnspecified, FeatureDiscovery, false},
	}
	for _, tc := range tests {
		if got := tc.capability.Includes(tc.feature); got != tc.want {
			t.Errorf("%v includes %v = %v, want %v", tc.capability, tc.feature, got, tc.want)
		}
	}
}

func TestParseCapability(t *testing.T) {
	for _, capability := range []Capability{CapabilityPresence, CapabilitySignals, CapabilityEphemeralData} {
		got, ok := ParseCapability(capability.String())
		if !ok || got != capability {
			t.Errorf("ParseCapability(%q) = %v, %v", capability.String(), got, ok)
		}
	}
	if _, ok := ParseCapability("psychic"); ok {
		t.Error("unknown capability name should not parse")
	}
}

func TestAllowsRequiresActiveState(t *testing.T) {
	epoch := Epoch{
		ID:         1,
		Exists:     true,
		StartsAt:   start,
		EndsAt:     end,
		Capability: CapabilityEphemeralData,
	}

	if !epoch.Allows(FeatureMedia, start.Add(time.Minute)) {
		t.Fatal("media should be allowed while active")
	}
	if epoch.Allows(FeatureMedia, start.Add(-time.Minute)) {
		t.Fatal("media should be blocked before start")
	}
	if epoch.Allows(FeatureMedia, end) {
		t.Fatal("media should be blocked once closed")
	}

	epoch.Capability = CapabilityPresence
	if epoch.Allows(FeatureMessaging, start.Add(time.Minute)) {
		t.Fatal("messaging should be blocked on a presence-only epoch")
	}
	if !epoch.Allows(FeatureDiscovery, start.Add(time.Minute)) {
		t.Fatal("discovery should be allowed on a presence-only epoch")
	}
}

func TestEpochJoinable(t *testing.T) {
	epoch := Epoch{ID: 1, Exists: true, StartsAt: start, EndsAt: end}
	if !epoch.Joinable(start.Add(-time.Minute)) {
		t.Fatal("scheduled epoch should be joinable")
	}
	if !epoch.Joinable(start) {
		t.Fatal("active epoch should be joinable")
	}
	if epoch.Joinable(end) {
		t.Fatal("closed epoch should not be joinable")
	}
}
