// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordCeremony(t *testing.T) {
	Enable()
	CeremoniesTotal.Reset()
	CeremonyDuration.Reset()

	RecordCeremony(CeremonyRegistration, StatusSuccess, 0.05)

	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 1 {
		t.Errorf("Expected 1 ceremony recorded, got %d", count)
	}
	histCount := testutil.CollectAndCount(CeremonyDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	RecordCeremony(CeremonyAuthentication, StatusError, 0.01)

	count = testutil.CollectAndCount(CeremoniesTotal)
	if count != 2 {
		t.Errorf("Expected 2 ceremonies recorded, got %d", count)
	}
}

func TestRecordCeremonyWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	CeremoniesTotal.Reset()
	RecordCeremony(CeremonyRegistration, StatusSuccess, 0.05)

	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 0 {
		t.Errorf("Expected 0 ceremonies when disabled, got %d", count)
	}
}

func TestRecordCloneWarning(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(CloneWarningsTotal)
	RecordCloneWarning()
	after := testutil.ToFloat64(CloneWarningsTotal)

	if after != before+1 {
		t.Errorf("Expected clone warnings to increase by 1, got %f -> %f", before, after)
	}
}

func TestRecordSyncSignal(t *testing.T) {
	Enable()
	SyncSignalsTotal.Reset()

	RecordSyncSignal(true)
	RecordSyncSignal(false)
	RecordSyncSignal(false)

	delivered := testutil.ToFloat64(SyncSignalsTotal.WithLabelValues(SignalDelivered))
	if delivered != 1 {
		t.Errorf("Expected 1 delivered signal, got %f", delivered)
	}
	empty := testutil.ToFloat64(SyncSignalsTotal.WithLabelValues(SignalEmpty))
	if empty != 2 {
		t.Errorf("Expected 2 empty signals, got %f", empty)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "200", 0.02)

	count := testutil.CollectAndCount(HTTPRequestsTotal)
	if count != 1 {
		t.Errorf("Expected 1 HTTP request recorded, got %d", count)
	}
}

func TestSetCredentialsTotal(t *testing.T) {
	Enable()

	SetCredentialsTotal(42)
	if got := testutil.ToFloat64(CredentialsTotal); got != 42 {
		t.Errorf("Expected credentials total 42, got %f", got)
	}
}

func TestCeremonyConstants(t *testing.T) {
	if CeremonyRegistration != "registration" {
		t.Errorf("Unexpected registration ceremony label: %s", CeremonyRegistration)
	}
	if CeremonyAuthentication != "authentication" {
		t.Errorf("Unexpected authentication ceremony label: %s", CeremonyAuthentication)
	}
	if StatusSuccess != "success" || StatusError != "error" {
		t.Error("Unexpected status constants")
	}
}

func TestMetricsNamespace(t *testing.T) {
	if Namespace != "passkey" {
		t.Errorf("Expected namespace passkey, got %s", Namespace)
	}
}
