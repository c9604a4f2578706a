// Package api defines the wire-level data model shared by clients and
// services: pipelines and their function-call nodes, the closed api_class
// registry, node lifecycle states, and the response envelopes streamed back
// to clients.
//
// A pipeline is an ordered list of nodes forming a DAG. Each node names an
// api_class from the registry, carries a typed param record validated
// against the class schema, and references its upstream nodes by id.
package api
