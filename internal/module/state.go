// Package module decides which optional features are on for a city.
//
// A module is enabled for a city when its city_module override says so.
// With no override row the module's own default applies: core modules
// are on everywhere, optional modules are off until a city opts in.
package module

// ResolveEnabledState applies the override rule.  override == nil means
// the city has no city_module row for the module.
func ResolveEnabledState(override *bool, isCore bool) bool {
	if override != nil {
		return *override
	}
	return isCore
}
