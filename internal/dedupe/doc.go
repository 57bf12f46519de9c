// Package dedupe tracks Idempotency-Key values sent with theme uploads so a
// retried request inside the window does not publish the same archive twice.
package dedupe
