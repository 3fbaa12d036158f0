package sdk

// Version is the published SDK version.
// 0.4.0: Add file-backed token store with change watching so another
// process logging out (or in) is picked up by re-verification.
// 0.3.0: Breaking - replace ad hoc interval polling with SessionManager,
// expiry-driven refresh scheduling, and coalesced verification.
// 0.2.0: Add CookieVerifier for cookie-based deployments.
const Version = "0.4.0"
