// Package server implements the HTTP file store: a single handler that
// maps request paths onto a flat upload folder under a fixed root and
// serves GET, POST (create-only) and DELETE against it. It also carries
// the ambient pieces wired around that handler (logging, metrics, probes,
// the audit trail, the object-store mirror and the live event feed) and
// the lifecycle helpers used by tests and the production binary.
package server
