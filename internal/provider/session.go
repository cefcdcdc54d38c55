// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import "strings"

// SessionProvider supplies the backend location and credentials for a load.
type SessionProvider interface {
	BaseURL() string
	KS() string
	PartnerID() int
}

// StaticSession is a SessionProvider with fixed values, typically from config.
type StaticSession struct {
	URL     string
	Session string
	Partner int
}

func (s StaticSession) BaseURL() string { return strings.TrimRight(s.URL, "/") }
func (s StaticSession) KS() string      { return s.Session }
func (s StaticSession) PartnerID() int  { return s.Partner }

// WithKS returns a copy of s carrying a different KS.
func (s StaticSession) WithKS(ks string) StaticSession {
	s.Session = ks
	return s
}
