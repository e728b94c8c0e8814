// Package cache holds the typed views over the ephemeral store used by the
// auth flow. Keys:
//
//	otp:<purpose>:<email>              keyed digest of the code
//	signup:<email>                     pending signup payload
//	session:<jti>                      refresh session, value is the user id
//	rate_limit:<action>:<identifier>   fixed-window counter
package cache

import "time"

// opTimeout bounds every store round-trip.
const opTimeout = 5 * time.Second
