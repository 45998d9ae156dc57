/*
Client for publishing to, and reading from, an atproto (Bluesky) account, built on the indigo XRPC client and generated lexicon types.

Only the handful of endpoints an autonomous account needs are wrapped: password login with automatic token refresh, record creation (posts, likes, reposts), and the home timeline. Posts in a thread are replies to the previous post; quotes are posts with a record embed; "retweets" are reposts.

A write is only considered successful if the response includes the URI of the created record. A response without one is treated as failure ([ErrMissingResult]) even if the HTTP request succeeded.

Sessions are held in a [Registry], keyed by account, so that multiple components acting as the same account share one login. The first caller performs the login and concurrent callers wait for the same result; a failed login is cleared so the next caller can retry.
*/
package platform
