// Package middleware provides the HTTP middleware for the clip merger server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - gzip compression of JSON and text responses (merged video downloads are exempt)
package middleware
