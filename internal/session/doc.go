// Package session implements warden's device-session admission and eviction
// protocol.
//
// Each user may hold at most N concurrently active device sessions. Admission
// upserts the caller's (user, device) row and re-reads the active set; when
// the post-upsert count exceeds the limit the caller receives the other active
// sessions as eviction candidates instead of an admission. Eviction
// deactivates a chosen session and admits the requesting device in its place.
//
// All mutual exclusion is delegated to the store: the composite
// (user_id, device_id) upsert is the serialization point, and the design
// tolerates a transiently over-limit active set that converges back to N on
// the next check. This package holds no in-process locks around store calls.
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
