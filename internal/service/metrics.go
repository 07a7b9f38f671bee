package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexPropagationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_index_propagation_total",
			Help: "Record store changes propagated to the search index, by operation and result",
		},
		[]string{"operation", "result"},
	)

	rebuildDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_rebuild_documents_total",
			Help: "Documents processed by full index rebuilds, by result",
		},
		[]string{"result"},
	)

	autocompleteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_autocomplete_index_failures_total",
			Help: "Autocomplete requests answered with an empty result because the index failed",
		},
	)
)

const (
	resultOK    = "ok"
	resultStale = "stale"
)
