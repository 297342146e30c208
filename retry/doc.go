// Package retry re-invokes failing operations a fixed number of times with a
// constant wait between attempts.
package retry
