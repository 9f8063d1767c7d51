package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is read from Engine.AuditDropped rather than the snapshot
// so it is reported even when counters are disabled.
const AuditDroppedName = "goguard_audit_dropped_total"

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricResetRequest, Name: "goguard_reset_request_total", Help: "Forgot-password submissions."},
	{ID: goGuard.MetricResetRequestThrottled, Name: "goguard_reset_request_throttled_total", Help: "Forgot-password submissions rejected by a throttle."},
	{ID: goGuard.MetricResetTokenIssued, Name: "goguard_reset_token_issued_total", Help: "Reset tokens issued."},
	{ID: goGuard.MetricResetNotifyFailure, Name: "goguard_reset_notify_failure_total", Help: "Reset links the notifier refused."},
	{ID: goGuard.MetricResetConfirmSuccess, Name: "goguard_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: goGuard.MetricResetConfirmFailure, Name: "goguard_reset_confirm_failure_total", Help: "Failed reset confirmations."},
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful logins."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed logins."},
	{ID: goGuard.MetricLoginLocked, Name: "goguard_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: goGuard.MetricLoginLockoutTriggered, Name: "goguard_login_lockout_triggered_total", Help: "Lockouts started."},
	{ID: goGuard.MetricLoginThrottled, Name: "goguard_login_throttled_total", Help: "Logins rejected by the per-IP throttle."},
	{ID: goGuard.MetricPersistenceFailure, Name: "goguard_persistence_failure_total", Help: "Store or counter failures."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricResetRequestLatency, Name: "goguard_reset_request_latency_seconds", Help: "Forgot-password latency including the response floor."},
	{ID: goGuard.MetricResetConfirmLatency, Name: "goguard_reset_confirm_latency_seconds", Help: "Reset confirmation latency."},
	{ID: goGuard.MetricLoginLatency, Name: "goguard_login_latency_seconds", Help: "Login latency."},
}

// HistogramBounds are goGuard.HistogramUpperBounds in seconds, without +Inf.
var HistogramBounds = func() []float64 {
	out := make([]float64, len(goGuard.HistogramUpperBounds))
	for i, d := range goGuard.HistogramUpperBounds {
		out[i] = d.Seconds()
	}
	return out
}()

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// need one instrument per bucket.
var HistogramBoundSuffix = [goGuard.HistogramBucketCount]string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [goGuard.HistogramBucketCount]uint64 {
	var out [goGuard.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals; the last
// element is the sample count.
func CumulativeBuckets(raw [goGuard.HistogramBucketCount]uint64) [goGuard.HistogramBucketCount]uint64 {
	var out [goGuard.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
