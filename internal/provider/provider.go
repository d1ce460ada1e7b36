// Package provider implements adapters for the external data providers.
//
// Every adapter follows the same contract: a fetch bound by the caller's
// context that never returns an error past its own boundary. Transport,
// parsing, and upstream failures are normalized into a result with
// StatusFailed so the orchestrator's merge logic needs no special-casing
// per failure type.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// maxResponseSize limits provider response bodies to prevent memory
// exhaustion from a misbehaving upstream.
const maxResponseSize = 4 * 1024 * 1024 // 4MB

// newHTTPClient builds the client shared by adapter constructors. No
// client-level timeout: each fetch is bounded by its context instead.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func okMeta(source domain.Source) domain.ResultMeta {
	return domain.ResultMeta{
		Source:    source,
		Status:    domain.StatusOK,
		FetchedAt: time.Now().UTC(),
	}
}

func degradedMeta(source domain.Source, reason string) domain.ResultMeta {
	return domain.ResultMeta{
		Source:    source,
		Status:    domain.StatusDegraded,
		Reason:    reason,
		FetchedAt: time.Now().UTC(),
	}
}

func failedMeta(source domain.Source, err error) domain.ResultMeta {
	reason := "upstream error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	} else if errors.Is(err, context.Canceled) {
		reason = "canceled"
	}
	return domain.ResultMeta{
		Source:    source,
		Status:    domain.StatusFailed,
		Reason:    reason,
		FetchedAt: time.Now().UTC(),
	}
}
