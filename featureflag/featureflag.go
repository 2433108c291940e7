// Package featureflag toggles destruction features at startup.
package featureflag

import "sort"

// FeatureFlag is a lookup map for features that is enabled or disabled
type FeatureFlag map[Flag]struct{}

// New return a new feature flags initialized with list of flags. Blank flags
// are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

// IfSet runs function `do ` if flag is set in the feature flags
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if _, ok := f[flag]; !ok {
		return
	}
	do()
}

// IfNotSet runs function `do` if flag is not set in the feature flags
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if _, ok := f[flag]; ok {
		return
	}
	do()
}

// Unknown returns the sorted flags that no feature reads.
func (f FeatureFlag) Unknown() []string {
	var unknown []string
	for flag := range f {
		if _, ok := knownFlags[flag]; !ok {
			unknown = append(unknown, string(flag))
		}
	}
	sort.Strings(unknown)
	return unknown
}
