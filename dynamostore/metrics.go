package dynamostore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "arbor_store_conflicts_total",
	Help: "Number of DynamoDB commits rejected by a concurrent writer",
})
