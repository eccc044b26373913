package redisx

import "time"

const (
	// Idempotent payment request: idem:fine:pay:{idempotency_key} -> fine JSON
	KeyIdemFinePayment = "idem:fine:pay:%s"

	// Cache status fine: fine_status:{fine_id} -> {"status": "...", "total_fine": "..."}
	KeyFineStatus = "fine_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
