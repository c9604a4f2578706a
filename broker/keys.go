package broker

import (
	"fmt"

	"github.com/google/uuid"
)

// Normative keyspace. Key layout is part of the wire contract between
// services; changing it is a breaking change.
const (
	ExecQueueKey      = "exec:queue"
	ExecProcessingKey = "exec:processing"
	DelayedKey        = "sched:delayed"
	WakeChannel       = "sched:wake"
	SealedChannel     = "cache:sealed"
)

// RequestKey is the hash holding one request record.
func RequestKey(requestID uuid.UUID) string {
	return fmt.Sprintf("request:%s", requestID)
}

// ResponseKey is the FIFO response queue of one request.
func ResponseKey(requestID uuid.UUID) string {
	return fmt.Sprintf("response:%s", requestID)
}

// InputKey is the value buffer feeding one input port of a node.
func InputKey(requestID, nodeID uuid.UUID, port int) string {
	return fmt.Sprintf("input:%s:%s:%d", requestID, nodeID, port)
}

// MailboxKey addresses a per-request string mailbox.
func MailboxKey(requestID uuid.UUID, mailbox string) string {
	return fmt.Sprintf("mailbox:%s:%s", requestID, mailbox)
}

// ClaimKey is the idempotence sentinel for one delayed-node activation.
func ClaimKey(runID string) string {
	return fmt.Sprintf("sched:claim:%s", runID)
}

// WorkClaimKey marks a work item as held by a live worker. Its expiry makes
// crashed workers' items reclaimable.
func WorkClaimKey(runID string) string {
	return fmt.Sprintf("exec:claim:%s", runID)
}

// CacheKey is the value list of one fingerprint.
func CacheKey(fingerprint string) string {
	return fmt.Sprintf("cache:%s", fingerprint)
}

// CacheSealKey marks a fingerprint's stream as complete.
func CacheSealKey(fingerprint string) string {
	return fmt.Sprintf("cache:seal:%s", fingerprint)
}

// CacheLockKey is the builder lock of one fingerprint.
func CacheLockKey(fingerprint string) string {
	return fmt.Sprintf("cache:lock:%s", fingerprint)
}
