// Package broker provides the durable message and state substrate coupling
// the dfm services, built on go-redis with dfm logging, connection pooling,
// and component lifecycle support.
//
// All inter-service coupling goes through the broker; services share no
// memory. The keyspace:
//
//	exec:queue                       FIFO list of work items
//	sched:delayed                    zset of delayed work keyed by wall-clock ms
//	sched:wake                       pub/sub channel for scheduler wake-up
//	sched:claim:<run_id>             idempotence sentinel for delayed moves
//	request:<request_id>             hash holding the request record
//	response:<request_id>            FIFO list of response envelopes
//	input:<request_id>:<node>:<port> FIFO list of upstream values + EOF marker
//	mailbox:<request_id>:<name>      string mailbox for SendMessage/AwaitMessage
//	cache:<fingerprint>              list of cached values (see package cache)
package broker
