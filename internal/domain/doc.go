// Package domain implements the four-stage privacy pipeline over municipal
// service requests.
//
// # Stages
//
// The stages compose strictly 1→2→3→4; each is a pure transformation over
// its input slice and returns a structured report alongside its output:
//
//  1. [JoinHexIndexes] assigns each request its resolution-8 H3 cell,
//     validated against the authoritative reference set, with a
//     data-quality report against a batch-derived acceptance threshold.
//  2. [FilterByProximity] keeps requests within a travel-time radius of a
//     geocoded reference point, with a fixed 2 km fallback radius when the
//     primary radius retains nothing.
//  3. [AugmentWithObservations] left-joins hourly wind observations on the
//     nearest-hour boundary.
//  4. [Anonymize] generalizes location to cell centroids, floors timestamps
//     to 6-hour windows, and drops identifying columns.
//
// # Sentinel
//
// A hex index of 0 is the reserved "no valid spatial assignment" marker and
// never a real cell. A record's index is always either a member of the
// reference [CellSet] or the sentinel.
//
// # Time handling
//
// Source timestamps carry a UTC offset; observation timestamps do not. Both
// sides of the temporal join are compared in naive local time, so parsing
// strips the offset while keeping the wall-clock reading.
package domain
