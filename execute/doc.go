// Package execute implements the execution service: a pool of workers
// pulling ready nodes from the broker queue, dispatching them to adapters
// through the site's provider table, streaming produced values into the
// cache, the client response queue, and downstream input buffers, and
// driving node lifecycle state.
package execute
