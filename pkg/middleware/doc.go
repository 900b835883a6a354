// Package middleware collects the HTTP middleware used by the public and
// management servers. Each middleware lives in its own subpackage and
// returns a gin.HandlerFunc so servers can compose exactly the stack they
// need.
package middleware
