package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsInvalid = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid",
		Help:         "stats_tool_calls_invalid provides total tool calls rejected by argument validation",
		RequiredTags: []string{"tool"},
	}

	StatsAPICalls = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_api_calls",
		Help:         "stats_api_calls provides total calls to the booking API",
		RequiredTags: []string{"endpoint", "result"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfAPICall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_api_call",
		Help:         "perf_api_call provides duration of calls to the booking API",
		RequiredTags: []string{"endpoint"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAPICall,
	&PerfToolCall,
	&StatsAPICalls,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalid,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
