// Package domain models the temperature comparison engine's core types.
//
// # Data source
//
// Temperatures come from the KMA (Korea Meteorological Administration)
// short-term forecast OpenAPI. The API does not accept latitude/longitude;
// it addresses a fixed 5 km Lambert conformal conic grid, so [Project]
// reproduces the administration's published lat/lon → (nx, ny) conversion
// bit for bit. Two endpoints matter here:
//
//	getUltraSrtNcst — hourly observations; category T1H is the air
//	                  temperature for the hour named by base_date/base_time.
//	getVilageFcst   — village forecast; category TMP carries hourly
//	                  temperatures for roughly 48 hours after the base
//	                  instant, which is how daily extremes are derived.
//
// # Time buckets
//
// Upstream data is published on fixed cadences, so cache keys and request
// parameters never use raw instants. A [TimeBucket] snaps an instant to the
// relevant cadence in the location's local calendar: hourly for observations,
// 06:00/18:00 for the twice-daily products, and whole days for extremes.
// Bucket strings are fixed width, so lexical order is chronological order and
// resolving a later instant can never yield an earlier bucket.
//
// # Comparison semantics
//
// A comparison is always "now versus the same slot yesterday" in the
// subscriber's local zone. Deltas are rounded to 0.1 °C and the sign alone
// selects the notification phrasing. Missing slots are an expected state
// shortly after local midnight and are reported as ErrInsufficientData,
// distinct from a provider outage.
package domain
