// Package cache persists prior API results and login credentials on disk with
// whole-day expiry.
//
// A Namespace is one independent mapping from a normalized identifier to an
// Entry, mirrored into a single JSON blob after every mutation:
//
//	{
//	  "HTTPS://API.TUMBLR.COM/V2/BLOG/X/POSTS": {
//	    "values": {...},
//	    "timestamp": "2024-03-01 12:00:00.000000",
//	    "expire_in_days": 7
//	  }
//	}
//
// Two namespaces are used by the application: "data" for decoded API responses
// keyed by request URL and "credentials" keyed by service name. They never share
// a blob. A missing or corrupt blob opens as an empty namespace.
//
// Identifiers are upper-cased before storage and lookup, so two URLs that only
// differ by case share one entry.
package cache
