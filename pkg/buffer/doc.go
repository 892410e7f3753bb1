// Package buffer provides a concurrency-safe sliding window over
// recent values.
//
// RingBuffer keeps the last N values added, evicting the oldest when
// full so producers never block. It backs the event tails shown in
// interactive terminal views.
package buffer
