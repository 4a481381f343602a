package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfCryptoOperation is perf metric
	PerfCryptoOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_crypto",
		Help:         "perf_crypto provides the sample metrics of crypto operations",
		RequiredTags: []string{"provider", "action"},
	}

	// PerfNativeCall is perf metric
	PerfNativeCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_pkcs11_call",
		Help:         "perf_pkcs11_call provides the sample metrics of calls to PKCS#11 library",
		RequiredTags: []string{"function"},
	}

	// PerfSessionOperation is perf metric
	PerfSessionOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_pkcs11_session",
		Help:         "perf_pkcs11_session provides the sample metrics of session operations",
		RequiredTags: []string{"slot", "action"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfCryptoOperation,
	&PerfNativeCall,
	&PerfSessionOperation,
}
