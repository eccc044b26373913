package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// FineStatus is the cached view served by GET /fines/{id}/status.
type FineStatus struct {
	FineID     string          `json:"fine_id"`
	LoanID     string          `json:"loan_id"`
	BorrowerID string          `json:"borrower_id"`
	Status     fines.Status    `json:"status"`
	TotalFine  decimal.Decimal `json:"total_fine"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func StatusOf(f fines.Fine) FineStatus {
	return FineStatus{
		FineID:     f.ID,
		LoanID:     f.LoanID,
		BorrowerID: f.BorrowerID,
		Status:     f.Status,
		TotalFine:  f.TotalFine,
		UpdatedAt:  f.UpdatedAt,
	}
}

// Cache wraps the fine status cache, payment idempotency and event dedup keys.
type Cache struct {
	RDB *redis.Client
}

func (c *Cache) PutFineStatus(ctx context.Context, f fines.Fine) error {
	b, err := json.Marshal(StatusOf(f))
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyFineStatus, f.ID), b, TTLStatusCache).Err()
}

// FineStatus returns the cached status; ok is false on a miss.
func (c *Cache) FineStatus(ctx context.Context, fineID string) (st FineStatus, ok bool, err error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyFineStatus, fineID)).Result()
	if err == redis.Nil {
		return FineStatus{}, false, nil
	}
	if err != nil {
		return FineStatus{}, false, err
	}
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return FineStatus{}, false, err
	}
	return st, true, nil
}

// RememberPayment stores the response of a payment request under its idempotency key.
func (c *Cache) RememberPayment(ctx context.Context, idemKey string, f fines.Fine) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemFinePayment, idemKey), b, TTLIdempotency).Err()
}

func (c *Cache) RecalledPayment(ctx context.Context, idemKey string) (f fines.Fine, ok bool, err error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyIdemFinePayment, idemKey)).Result()
	if err == redis.Nil {
		return fines.Fine{}, false, nil
	}
	if err != nil {
		return fines.Fine{}, false, err
	}
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return fines.Fine{}, false, err
	}
	return f, true, nil
}

// FirstSeen atomically marks an event as processed by service; false means it was seen before.
func (c *Cache) FirstSeen(ctx context.Context, service, eventID string) (bool, error) {
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
}

// Forget drops a dedup mark so a failed event can be retried.
func (c *Cache) Forget(ctx context.Context, service, eventID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}
